package ast

import (
	"kestrel/pkg/errors"
	"kestrel/pkg/types"
)

// The backend consumes a closed set of node kinds produced by the
// external parser. Nodes are plain data: the parser owns construction,
// the checker decorates expressions with type hints, and the compiler
// only reads.

// Node is the interface implemented by every AST node.
type Node interface {
	Pos() errors.Position
}

// Expression nodes produce a value.
type Expression interface {
	Node
	Hint() types.Hint
	SetHint(types.Hint)
	expressionNode()
}

// Statement nodes have net-zero stack effect.
type Statement interface {
	Node
	statementNode()
}

// base carries the source position shared by all nodes.
type base struct {
	Position errors.Position
}

func (b base) Pos() errors.Position { return b.Position }

// exprBase additionally carries the checker-assigned type hint.
type exprBase struct {
	base
	hint types.Hint
}

func (e *exprBase) Hint() types.Hint     { return e.hint }
func (e *exprBase) SetHint(h types.Hint) { e.hint = h }
func (e *exprBase) expressionNode()      {}

type stmtBase struct {
	base
}

func (s *stmtBase) statementNode() {}

// --- Program ---

// Program is the root node of one compilation unit.
type Program struct {
	base
	Name       string // Module name (e.g. "main", "lib/util")
	Statements []Statement
}

// --- Literals ---

type NumberLiteral struct {
	exprBase
	Value float64
}

type StringLiteral struct {
	exprBase
	Value string
}

type BooleanLiteral struct {
	exprBase
	Value bool
}

type NullLiteral struct {
	exprBase
}

type UndefinedLiteral struct {
	exprBase
}

// RegexLiteral holds the raw pattern and flags of a /pattern/flags
// literal. The pattern is validated at compile time.
type RegexLiteral struct {
	exprBase
	Pattern string
	Flags   string
}

// TemplateLiteral represents `a${b}c`: len(Quasis) == len(Exprs)+1.
type TemplateLiteral struct {
	exprBase
	Quasis []string
	Exprs  []Expression
}

type ArrayLiteral struct {
	exprBase
	Elements []Expression
}

// ObjectProperty is one `key: value` entry of an object literal.
type ObjectProperty struct {
	Key   string
	Value Expression
}

type ObjectLiteral struct {
	exprBase
	Properties []ObjectProperty
}

// FunctionLiteral covers function declarations, function expressions and
// arrows. Declarations carry a non-nil Name; IsDeclaration distinguishes
// hoisted statement forms from expression forms.
type FunctionLiteral struct {
	exprBase
	Name          *Identifier // nil for anonymous expressions
	Parameters    []*Identifier
	Body          *BlockStatement
	IsAsync       bool
	IsGenerator   bool
	IsArrow       bool
	IsDeclaration bool
	TypeParams    []string // generic parameters; erased during emission
}

// --- Expressions ---

type Identifier struct {
	exprBase
	Value string
}

type ThisExpression struct {
	exprBase
}

// PrefixExpression: "-", "!", "+", "typeof".
type PrefixExpression struct {
	exprBase
	Operator string
	Right    Expression
}

// InfixExpression covers arithmetic, comparison, logical ("&&", "||",
// "??") and string operators.
type InfixExpression struct {
	exprBase
	Operator string
	Left     Expression
	Right    Expression
}

// TernaryExpression: cond ? consequent : alternative.
type TernaryExpression struct {
	exprBase
	Condition   Expression
	Consequent  Expression
	Alternative Expression
}

// AssignmentExpression: target op= value, where op is "=", "+=", "-=",
// "*=", "/=", "%=". Target is an Identifier, MemberExpression or
// IndexExpression.
type AssignmentExpression struct {
	exprBase
	Operator string
	Target   Expression
	Value    Expression
}

// UpdateExpression: ++x, x++, --x, x--.
type UpdateExpression struct {
	exprBase
	Operator string // "++" or "--"
	Prefix   bool
	Target   Expression
}

// MemberExpression: object.property (non-computed). Private is true for
// obj.#name access.
type MemberExpression struct {
	exprBase
	Object   Expression
	Property string
	Private  bool
}

// IndexExpression: object[index].
type IndexExpression struct {
	exprBase
	Object Expression
	Index  Expression
}

type CallExpression struct {
	exprBase
	Callee    Expression
	Arguments []Expression
}

type NewExpression struct {
	exprBase
	Callee    Expression
	Arguments []Expression
}

// AwaitExpression suspends an async function until Value settles.
type AwaitExpression struct {
	exprBase
	Value Expression
}

// YieldExpression suspends a generator. Delegate marks yield*.
type YieldExpression struct {
	exprBase
	Value    Expression // may be nil (yield with no operand)
	Delegate bool
}

// --- Statements ---

type ExpressionStatement struct {
	stmtBase
	Expression Expression
}

// LetStatement declares a binding (let or const).
type LetStatement struct {
	stmtBase
	Name    *Identifier
	Value   Expression // may be nil (declaration without initializer)
	IsConst bool
}

type ReturnStatement struct {
	stmtBase
	Value Expression // may be nil
}

type BlockStatement struct {
	stmtBase
	Statements []Statement
}

type IfStatement struct {
	stmtBase
	Condition   Expression
	Consequence *BlockStatement
	Alternative Statement // *BlockStatement, *IfStatement or nil
}

type WhileStatement struct {
	stmtBase
	Condition Expression
	Body      *BlockStatement
}

type ForStatement struct {
	stmtBase
	Init      Statement // *LetStatement, *ExpressionStatement or nil
	Condition Expression
	Update    Expression
	Body      *BlockStatement
}

// ForOfStatement iterates Value over the pull-based iteration protocol.
type ForOfStatement struct {
	stmtBase
	Name  *Identifier
	Value Expression
	Body  *BlockStatement
}

type BreakStatement struct {
	stmtBase
	Label string // empty for unlabeled break
}

type ContinueStatement struct {
	stmtBase
	Label string
}

type LabeledStatement struct {
	stmtBase
	Label string
	Body  Statement
}

type ThrowStatement struct {
	stmtBase
	Value Expression
}

// TryStatement: Catch and Finally may each be nil, but not both.
type TryStatement struct {
	stmtBase
	Block      *BlockStatement
	CatchParam *Identifier // nil for catch-less try or parameter-less catch
	Catch      *BlockStatement
	Finally    *BlockStatement
}

// --- Classes ---

// ClassField is a declared (typed, backed) member, optionally static,
// optionally private (#name).
type ClassField struct {
	Name     string
	Private  bool
	Static   bool
	Value    Expression // initializer, may be nil
	Position errors.Position
}

// ClassMethod is a method or the constructor (Name == "constructor").
type ClassMethod struct {
	Name     string
	Static   bool
	Fn       *FunctionLiteral
	Position errors.Position
}

type ClassDeclaration struct {
	stmtBase
	Name    *Identifier
	Fields  []*ClassField
	Methods []*ClassMethod
}

// --- Modules ---

// ImportKind distinguishes the three import specifier forms.
type ImportKind uint8

const (
	ImportNamed ImportKind = iota
	ImportDefault
	ImportNamespace
)

// ImportSpecifier binds one local name to an export of Source.
type ImportSpecifier struct {
	Kind     ImportKind
	Imported string // exporter-side name (empty for default/namespace)
	Local    string // local binding name
}

type ImportDeclaration struct {
	stmtBase
	Specifiers []ImportSpecifier
	Source     string // module specifier
}

// ExportSpecifier renames Local to Exported (both equal for plain
// `export {x}`).
type ExportSpecifier struct {
	Local    string
	Exported string
}

// ExportNamedDeclaration covers `export let x = ...`,
// `export function f() {}`, `export {a, b}` and re-exports
// `export {a} from "m"`.
type ExportNamedDeclaration struct {
	stmtBase
	Declaration Statement // *LetStatement, *FunctionLiteral stmt or nil
	Specifiers  []ExportSpecifier
	Source      string // non-empty for re-exports
}

type ExportDefaultDeclaration struct {
	stmtBase
	Value Expression
}
