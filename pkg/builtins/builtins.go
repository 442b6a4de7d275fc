// Package builtins is the name-indexed lookup of pre-built callable
// descriptors. It covers two layers: host builtins addressable from user
// source (console.log, Math.floor, JSON.stringify) and the Sys.*
// platform primitives the emitted runtime helpers bottom out in. The
// backend only plumbs call sites; bodies live in the execution target.
package builtins

import "kestrel/pkg/il"

// DescriptorKind distinguishes how a builtin call site is lowered.
type DescriptorKind uint8

const (
	// IntrinsicCall lowers to a direct platform-primitive call.
	IntrinsicCall DescriptorKind = iota
	// RuntimeCall lowers to a call into the self-hosted runtime module
	// emitted into the artifact (e.g. JSON.stringify).
	RuntimeCall
)

// Descriptor is one callable builtin.
type Descriptor struct {
	Name      string
	Kind      DescriptorKind
	Intrinsic il.Intrinsic // IntrinsicCall only
	Runtime   string       // RuntimeCall only: runtime helper name
	Arity     int          // fixed argument count; -1 variadic
}

var table = map[string]Descriptor{
	// Host builtins reachable from user source.
	"console.log":   {Name: "console.log", Kind: IntrinsicCall, Intrinsic: il.IntrConsoleLog, Arity: -1},
	"console.error": {Name: "console.error", Kind: IntrinsicCall, Intrinsic: il.IntrConsoleError, Arity: -1},
	"Math.floor":    {Name: "Math.floor", Kind: IntrinsicCall, Intrinsic: il.IntrMathFloor, Arity: 1},
	"Math.abs":      {Name: "Math.abs", Kind: IntrinsicCall, Intrinsic: il.IntrMathAbs, Arity: 1},
	"isNaN":         {Name: "isNaN", Kind: IntrinsicCall, Intrinsic: il.IntrIsNaN, Arity: 1},

	// JSON encoding is implemented by the emitted runtime module, not by
	// the platform: the artifact must carry its own encoder.
	"JSON.stringify": {Name: "JSON.stringify", Kind: RuntimeCall, Runtime: "jsonEncode", Arity: 3},
	"String":         {Name: "String", Kind: RuntimeCall, Runtime: "toString", Arity: 1},

	// Sys.* platform primitives. Never addressable from user source;
	// resolved only by the runtime emitter and lowering passes.
	"Sys.Num.toString":     {Name: "Sys.Num.toString", Kind: IntrinsicCall, Intrinsic: il.IntrNumToStr, Arity: 1},
	"Sys.Num.isNaN":        {Name: "Sys.Num.isNaN", Kind: IntrinsicCall, Intrinsic: il.IntrIsNaN, Arity: 1},
	"Sys.Str.length":       {Name: "Sys.Str.length", Kind: IntrinsicCall, Intrinsic: il.IntrStrLen, Arity: 1},
	"Sys.Str.charCodeAt":   {Name: "Sys.Str.charCodeAt", Kind: IntrinsicCall, Intrinsic: il.IntrStrCharCodeAt, Arity: 2},
	"Sys.Str.fromCharCode": {Name: "Sys.Str.fromCharCode", Kind: IntrinsicCall, Intrinsic: il.IntrStrFromCharCode, Arity: 1},
	"Sys.Str.substring":    {Name: "Sys.Str.substring", Kind: IntrinsicCall, Intrinsic: il.IntrStrSub, Arity: 3},
	"Sys.Str.quote":        {Name: "Sys.Str.quote", Kind: IntrinsicCall, Intrinsic: il.IntrStrQuote, Arity: 1},
	"Sys.Str.eq":           {Name: "Sys.Str.eq", Kind: IntrinsicCall, Intrinsic: il.IntrStrEq, Arity: 2},
	"Sys.Kind.of":          {Name: "Sys.Kind.of", Kind: IntrinsicCall, Intrinsic: il.IntrKindOf, Arity: 1},
	"Sys.Obj.hasField":     {Name: "Sys.Obj.hasField", Kind: IntrinsicCall, Intrinsic: il.IntrHasField, Arity: 2},
	"Sys.Obj.getField":     {Name: "Sys.Obj.getField", Kind: IntrinsicCall, Intrinsic: il.IntrGetField, Arity: 2},
	"Sys.Obj.setField":     {Name: "Sys.Obj.setField", Kind: IntrinsicCall, Intrinsic: il.IntrSetField, Arity: 3},
	"Sys.Obj.extHas":       {Name: "Sys.Obj.extHas", Kind: IntrinsicCall, Intrinsic: il.IntrExtHas, Arity: 2},
	"Sys.Obj.extGet":       {Name: "Sys.Obj.extGet", Kind: IntrinsicCall, Intrinsic: il.IntrExtGet, Arity: 2},
	"Sys.Obj.extSet":       {Name: "Sys.Obj.extSet", Kind: IntrinsicCall, Intrinsic: il.IntrExtSet, Arity: 3},
	"Sys.Obj.keys":         {Name: "Sys.Obj.keys", Kind: IntrinsicCall, Intrinsic: il.IntrKeys, Arity: 1},
	"Sys.Obj.refEq":        {Name: "Sys.Obj.refEq", Kind: IntrinsicCall, Intrinsic: il.IntrRefEq, Arity: 2},
	"Sys.Arr.length":       {Name: "Sys.Arr.length", Kind: IntrinsicCall, Intrinsic: il.IntrArrLen, Arity: 1},
	"Sys.Arr.get":          {Name: "Sys.Arr.get", Kind: IntrinsicCall, Intrinsic: il.IntrArrGet, Arity: 2},
	"Sys.Arr.set":          {Name: "Sys.Arr.set", Kind: IntrinsicCall, Intrinsic: il.IntrArrSet, Arity: 3},
	"Sys.Arr.push":         {Name: "Sys.Arr.push", Kind: IntrinsicCall, Intrinsic: il.IntrArrPush, Arity: 2},
	"Sys.Future.new":       {Name: "Sys.Future.new", Kind: IntrinsicCall, Intrinsic: il.IntrFutureNew, Arity: 0},
	"Sys.Future.of":        {Name: "Sys.Future.of", Kind: IntrinsicCall, Intrinsic: il.IntrFutureOf, Arity: 1},
	"Sys.Future.resolve":   {Name: "Sys.Future.resolve", Kind: IntrinsicCall, Intrinsic: il.IntrFutureResolve, Arity: 2},
	"Sys.Future.reject":    {Name: "Sys.Future.reject", Kind: IntrinsicCall, Intrinsic: il.IntrFutureReject, Arity: 2},
	"Sys.Future.onSettle":  {Name: "Sys.Future.onSettle", Kind: IntrinsicCall, Intrinsic: il.IntrFutureOnSettle, Arity: 2},
	"Sys.Regex.new":        {Name: "Sys.Regex.new", Kind: IntrinsicCall, Intrinsic: il.IntrRegexNew, Arity: 2},
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := table[name]
	return d, ok
}

// IsUserVisible reports whether the name may appear in user source.
func IsUserVisible(name string) bool {
	_, ok := table[name]
	if !ok {
		return false
	}
	return len(name) < 4 || name[:4] != "Sys."
}
