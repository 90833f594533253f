// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package ast

import "io"

// TokenSource is anything that can hand the parser one token at a time.
// Both *Lexer and the preprocessor satisfy it, so the parser never knows
// whether it is reading raw source or macro-expanded output.
type TokenSource interface {
	NextToken() Token
}

// Parser is a one-token-lookahead recursive-descent parser over a C
// translation unit. It keeps the current token plus a single peeked
// token; unlike a context-free grammar, C
// requires the parser to track typedef names and struct/union/enum tags
// as it goes (the "lexer hack"), so Parser also carries those tables.
type Parser struct {
	src    TokenSource
	tok    Token
	peeked *Token

	typedefTypes map[string]*Type
	tagTypes     map[string]*Type

	// pendingEnumConsts accumulates EnumConstDecl nodes discovered while
	// parsing an enum specifier; the caller that triggered the enum parse
	// (externalDecl or declStmt) drains them into its own declaration list.
	pendingEnumConsts []*EnumConstDecl
}

// takePendingEnumConsts drains and returns any enum constants collected
// since the last call.
func (p *Parser) takePendingEnumConsts() []AstDecl {
	if len(p.pendingEnumConsts) == 0 {
		return nil
	}
	out := make([]AstDecl, len(p.pendingEnumConsts))
	for i, e := range p.pendingEnumConsts {
		out[i] = e
	}
	p.pendingEnumConsts = nil
	return out
}

func NewParser(src TokenSource) *Parser {
	p := &Parser{src: src, typedefTypes: map[string]*Type{}, tagTypes: map[string]*Type{}}
	p.advance()
	return p
}

func ParseFile(fileName string, r io.Reader) *TranslationUnit {
	return NewParser(NewLexer(fileName, r)).Parse()
}

func (p *Parser) advance() {
	if p.peeked != nil {
		p.tok = *p.peeked
		p.peeked = nil
		return
	}
	p.tok = p.src.NextToken()
}

func (p *Parser) peek() Token {
	if p.peeked == nil {
		t := p.src.NextToken()
		p.peeked = &t
	}
	return *p.peeked
}

func (p *Parser) expect(kind TokenKind, what string) {
	if p.tok.Kind != kind {
		errorAt(p.tok.Pos, "expected %s, got %q", what, p.tok.Text)
	}
	p.advance()
}

func (p *Parser) identText() string {
	if p.tok.Kind != TK_IDENT {
		errorAt(p.tok.Pos, "expected identifier, got %q", p.tok.Text)
	}
	s := p.tok.Text
	p.advance()
	return s
}

// isDeclStart reports whether tok can start a declaration-specifier list:
// a builtin type keyword, a storage-class/qualifier keyword, or a name
// previously declared with typedef.
func (p *Parser) isDeclStart(tok Token) bool {
	switch tok.Kind {
	case KW_TYPEDEF, KW_STATIC, KW_EXTERN, KW_CONST:
		return true
	}
	if tok.Kind.IsTypeKeyword() {
		return true
	}
	if tok.Kind == TK_IDENT {
		_, ok := p.typedefTypes[tok.Text]
		return ok
	}
	return false
}

// -----------------------------------------------------------------------------
// Translation unit / external declarations

func (p *Parser) Parse() *TranslationUnit {
	tu := &TranslationUnit{}
	for p.tok.Kind != TK_EOF {
		for _, d := range p.externalDecl() {
			tu.Decls = append(tu.Decls, d)
			if fn, ok := d.(*FuncDecl); ok && fn.Body != nil {
				tu.Funcs = append(tu.Funcs, fn)
			}
		}
	}
	return tu
}

func (p *Parser) externalDecl() []AstDecl {
	pos := p.tok.Pos
	base, sc := p.declSpec()
	enumConsts := p.takePendingEnumConsts()

	if p.tok.Kind == TK_SEMICOLON {
		p.advance()
		return append(enumConsts, &TypeDecl{Type: base})
	}

	name, ty := p.declarator(base)

	if sc == SCTypedef {
		p.typedefTypes[name] = ty
		decls := append(enumConsts, &TypeDecl{Name: name, Type: ty, IsTypedef: true})
		for p.tok.Kind == TK_COMMA {
			p.advance()
			n2, t2 := p.declarator(base)
			p.typedefTypes[n2] = t2
			decls = append(decls, &TypeDecl{Name: n2, Type: t2, IsTypedef: true})
		}
		p.expect(TK_SEMICOLON, ";")
		return decls
	}

	if ty.Kind == TyFunc && p.tok.Kind == TK_LBRACE {
		fn := &FuncDecl{Name: name, Type: ty, ParamNames: ty.ParamNames, Storage: sc, Pos: pos}
		fn.Body = p.compoundStmt()
		return append(enumConsts, fn)
	}
	if ty.Kind == TyFunc {
		p.expect(TK_SEMICOLON, ";")
		return append(enumConsts, &FuncDecl{Name: name, Type: ty, ParamNames: ty.ParamNames, Storage: sc, Pos: pos})
	}

	decls := append(enumConsts, p.finishVarDecl(name, ty, sc, pos))
	for p.tok.Kind == TK_COMMA {
		p.advance()
		p2 := p.tok.Pos
		n2, t2 := p.declarator(base)
		decls = append(decls, p.finishVarDecl(n2, t2, sc, p2))
	}
	p.expect(TK_SEMICOLON, ";")
	return decls
}

func (p *Parser) finishVarDecl(name string, ty *Type, sc StorageClass, pos Pos) *VarDecl {
	vd := &VarDecl{Name: name, Type: ty, Storage: sc, Pos: pos}
	if p.tok.Kind == TK_ASSIGN {
		p.advance()
		if p.tok.Kind == TK_LBRACE {
			vd.InitList = p.initList()
		} else {
			vd.Init = p.assignExpr()
		}
	}
	return vd
}

// -----------------------------------------------------------------------------
// Declaration specifiers, declarators, type names

// declSpec parses the declaration-specifiers production: any mix of
// storage-class keywords, qualifiers, and exactly one coherent type
// specifier combination.
func (p *Parser) declSpec() (*Type, StorageClass) {
	sc := SCNone
	var kw, longCount int
	var void, charT, shortT, intT, signedT, unsignedT, floatT, doubleT bool
	var agg *Type

loop:
	for {
		switch p.tok.Kind {
		case KW_TYPEDEF:
			sc = SCTypedef
			p.advance()
		case KW_STATIC:
			sc = SCStatic
			p.advance()
		case KW_EXTERN:
			sc = SCExtern
			p.advance()
		case KW_CONST:
			p.advance()
		case KW_VOID:
			void = true
			kw++
			p.advance()
		case KW_CHAR:
			charT = true
			kw++
			p.advance()
		case KW_SHORT:
			shortT = true
			kw++
			p.advance()
		case KW_INT:
			intT = true
			kw++
			p.advance()
		case KW_LONG:
			longCount++
			kw++
			p.advance()
		case KW_SIGNED:
			signedT = true
			kw++
			p.advance()
		case KW_UNSIGNED:
			unsignedT = true
			kw++
			p.advance()
		case KW_FLOAT:
			floatT = true
			kw++
			p.advance()
		case KW_DOUBLE:
			doubleT = true
			kw++
			p.advance()
		case KW_STRUCT:
			agg = p.structOrUnionDecl(TyStruct)
			kw++
		case KW_UNION:
			agg = p.structOrUnionDecl(TyUnion)
			kw++
		case KW_ENUM:
			agg = p.enumDecl()
			kw++
		case TK_IDENT:
			if kw > 0 {
				break loop
			}
			if t, ok := p.typedefTypes[p.tok.Text]; ok {
				agg = t
				kw++
				p.advance()
			} else {
				break loop
			}
		default:
			break loop
		}
	}

	if agg != nil {
		return agg, sc
	}
	switch {
	case void:
		return TVoid, sc
	case charT:
		if unsignedT {
			return TUChar, sc
		}
		return TChar, sc
	case shortT:
		if unsignedT {
			return TUShort, sc
		}
		return TShort, sc
	case floatT:
		return TFloat, sc
	case doubleT:
		return TDouble, sc
	case longCount > 0:
		if unsignedT {
			return TULong, sc
		}
		return TLong, sc
	case intT, signedT, unsignedT:
		if unsignedT {
			return TUInt, sc
		}
		return TInt, sc
	}
	errorAt(p.tok.Pos, "expected a type, got %q", p.tok.Text)
	return TInt, sc
}

func (p *Parser) structOrUnionDecl(kind TypeKind) *Type {
	p.advance() // 'struct' / 'union'
	tag := ""
	if p.tok.Kind == TK_IDENT {
		tag = p.tok.Text
		p.advance()
	}
	if p.tok.Kind != TK_LBRACE {
		if tag == "" {
			errorAt(p.tok.Pos, "expected struct/union tag or body")
		}
		if t, ok := p.tagTypes[tag]; ok {
			return t
		}
		stub := &Type{Kind: kind, Tag: tag}
		p.tagTypes[tag] = stub
		return stub
	}
	p.advance()
	t := &Type{Kind: kind, Tag: tag}
	if tag != "" {
		p.tagTypes[tag] = t
	}
	for p.tok.Kind != TK_RBRACE {
		mbase, _ := p.declSpec()
		for {
			name, mty := p.declarator(mbase)
			t.Members = append(t.Members, &Member{Name: name, Type: mty})
			if p.tok.Kind == TK_COMMA {
				p.advance()
				continue
			}
			break
		}
		p.expect(TK_SEMICOLON, ";")
	}
	p.expect(TK_RBRACE, "}")
	if kind == TyStruct {
		LayoutStruct(t)
	} else {
		LayoutUnion(t)
	}
	return t
}

func (p *Parser) enumDecl() *Type {
	p.advance() // 'enum'
	tag := ""
	if p.tok.Kind == TK_IDENT {
		tag = p.tok.Text
		p.advance()
	}
	if p.tok.Kind != TK_LBRACE {
		if tag != "" {
			if t, ok := p.tagTypes[tag]; ok {
				return t
			}
		}
		return &Type{Kind: TyEnum, Tag: tag, Width: 4}
	}
	p.advance()
	t := &Type{Kind: TyEnum, Tag: tag, Width: 4}
	if tag != "" {
		p.tagTypes[tag] = t
	}
	var next int64
	for p.tok.Kind != TK_RBRACE {
		name := p.identText()
		if p.tok.Kind == TK_ASSIGN {
			p.advance()
			next = foldConstInt(p.conditional())
		}
		p.pendingEnumConsts = append(p.pendingEnumConsts, &EnumConstDecl{Name: name, Value: next, Type: t})
		next++
		if p.tok.Kind == TK_COMMA {
			p.advance()
			continue
		}
		break
	}
	p.expect(TK_RBRACE, "}")
	return t
}

// pointerDecl consumes any number of leading '*' (with optional trailing
// const) and wraps base in a pointer for each one.
func (p *Parser) pointerDecl(base *Type) *Type {
	ty := base
	for p.tok.Kind == TK_STAR {
		p.advance()
		for p.tok.Kind == KW_CONST {
			p.advance()
		}
		ty = PointerTo(ty)
	}
	return ty
}

// declarator parses a (possibly abstract, i.e. nameless) declarator and
// returns the declared name (empty for an abstract declarator) and its
// full type, built by threading base through pointer/array/function
// modifiers in the order C requires: this is the classic placeholder-patch
// algorithm used by every hand-written C parser to handle parenthesised
// declarators such as function-pointer types.
func (p *Parser) declarator(base *Type) (string, *Type) {
	ty := p.pointerDecl(base)
	if p.tok.Kind == TK_LPAREN {
		placeholder := &Type{}
		p.advance()
		name, composed := p.declarator(placeholder)
		p.expect(TK_RPAREN, ")")
		*placeholder = *p.typeSuffix(ty)
		return name, composed
	}
	name := ""
	if p.tok.Kind == TK_IDENT {
		name = p.tok.Text
		p.advance()
	}
	return name, p.typeSuffix(ty)
}

func (p *Parser) typeSuffix(base *Type) *Type {
	switch p.tok.Kind {
	case TK_LBRACKET:
		return p.arrayDimensions(base)
	case TK_LPAREN:
		return p.funcParams(base)
	}
	return base
}

func (p *Parser) arrayDimensions(base *Type) *Type {
	p.advance() // '['
	length, hasLen := 0, false
	if p.tok.Kind != TK_RBRACKET {
		length = int(foldConstInt(p.conditional()))
		hasLen = true
	}
	p.expect(TK_RBRACKET, "]")
	elem := p.typeSuffix(base)
	return ArrayOf(elem, length, hasLen)
}

func (p *Parser) funcParams(base *Type) *Type {
	p.advance() // '('
	var params []*Type
	var names []string
	variadic := false
	if p.tok.Kind == KW_VOID && p.peek().Kind == TK_RPAREN {
		p.advance()
	} else if p.tok.Kind != TK_RPAREN {
		for {
			if p.tok.Kind == TK_ELLIPSIS {
				p.advance()
				variadic = true
				break
			}
			pbase, _ := p.declSpec()
			pname, pty := p.declarator(pbase)
			params = append(params, pty.Decay())
			names = append(names, pname)
			if p.tok.Kind == TK_COMMA {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(TK_RPAREN, ")")
	ft := FuncOf(base, params, variadic)
	ft.ParamNames = names
	return ft
}

// typeName parses a type-name production (used by casts and sizeof): a
// declaration-specifier list followed by an optional abstract declarator.
func (p *Parser) typeName() *Type {
	base, _ := p.declSpec()
	_, ty := p.declarator(base)
	return ty
}

// -----------------------------------------------------------------------------
// Statements

func (p *Parser) compoundStmt() *Block {
	p.expect(TK_LBRACE, "{")
	b := &Block{}
	for p.tok.Kind != TK_RBRACE && p.tok.Kind != TK_EOF {
		b.Stmts = append(b.Stmts, p.statement())
	}
	p.expect(TK_RBRACE, "}")
	return b
}

func (p *Parser) statement() AstStmt {
	switch p.tok.Kind {
	case TK_LBRACE:
		return p.compoundStmt()
	case KW_IF:
		return p.ifStmt()
	case KW_WHILE:
		return p.whileStmt()
	case KW_DO:
		return p.doWhileStmt()
	case KW_FOR:
		return p.forStmt()
	case KW_SWITCH:
		return p.switchStmt()
	case KW_CASE:
		p.advance()
		v := foldConstInt(p.conditional())
		p.expect(TK_COLON, ":")
		return &CaseStmt{Value: v}
	case KW_DEFAULT:
		p.advance()
		p.expect(TK_COLON, ":")
		return &DefaultStmt{}
	case KW_BREAK:
		p.advance()
		p.expect(TK_SEMICOLON, ";")
		return &BreakStmt{}
	case KW_CONTINUE:
		p.advance()
		p.expect(TK_SEMICOLON, ";")
		return &ContinueStmt{}
	case KW_RETURN:
		p.advance()
		var x AstExpr
		if p.tok.Kind != TK_SEMICOLON {
			x = p.expression()
		}
		p.expect(TK_SEMICOLON, ";")
		return &ReturnStmt{X: x}
	case KW_GOTO:
		p.advance()
		name := p.identText()
		p.expect(TK_SEMICOLON, ";")
		return &GotoStmt{Label: name}
	case TK_SEMICOLON:
		p.advance()
		return &ExprStmt{}
	case TK_IDENT:
		if p.peek().Kind == TK_COLON {
			name := p.tok.Text
			p.advance()
			p.advance()
			return &LabelStmt{Name: name, Stmt: p.statement()}
		}
	}
	if p.isDeclStart(p.tok) {
		return p.declStmt()
	}
	x := p.expression()
	p.expect(TK_SEMICOLON, ";")
	return &ExprStmt{X: x}
}

func (p *Parser) declStmt() *DeclStmt {
	pos := p.tok.Pos
	base, sc := p.declSpec()
	ds := &DeclStmt{Enums: p.pendingEnumConsts}
	p.pendingEnumConsts = nil
	if p.tok.Kind == TK_SEMICOLON {
		p.advance()
		return ds
	}
	name, ty := p.declarator(base)
	if sc == SCTypedef {
		p.typedefTypes[name] = ty
	} else {
		ds.Decls = append(ds.Decls, p.finishVarDecl(name, ty, sc, pos))
	}
	for p.tok.Kind == TK_COMMA {
		p.advance()
		p2 := p.tok.Pos
		n2, t2 := p.declarator(base)
		if sc == SCTypedef {
			p.typedefTypes[n2] = t2
		} else {
			ds.Decls = append(ds.Decls, p.finishVarDecl(n2, t2, sc, p2))
		}
	}
	p.expect(TK_SEMICOLON, ";")
	return ds
}

func (p *Parser) ifStmt() AstStmt {
	p.advance()
	p.expect(TK_LPAREN, "(")
	cond := p.expression()
	p.expect(TK_RPAREN, ")")
	then := p.statement()
	var els AstStmt
	if p.tok.Kind == KW_ELSE {
		p.advance()
		els = p.statement()
	}
	return &IfStmt{Cond: cond, Then: then, Else: els}
}

func (p *Parser) whileStmt() AstStmt {
	p.advance()
	p.expect(TK_LPAREN, "(")
	cond := p.expression()
	p.expect(TK_RPAREN, ")")
	return &WhileStmt{Cond: cond, Body: p.statement()}
}

func (p *Parser) doWhileStmt() AstStmt {
	p.advance()
	body := p.statement()
	p.expect(KW_WHILE, "while")
	p.expect(TK_LPAREN, "(")
	cond := p.expression()
	p.expect(TK_RPAREN, ")")
	p.expect(TK_SEMICOLON, ";")
	return &DoWhileStmt{Cond: cond, Body: body}
}

func (p *Parser) forStmt() AstStmt {
	p.advance()
	p.expect(TK_LPAREN, "(")
	var init AstStmt
	switch {
	case p.tok.Kind == TK_SEMICOLON:
		p.advance()
	case p.isDeclStart(p.tok):
		init = p.declStmt()
	default:
		x := p.expression()
		p.expect(TK_SEMICOLON, ";")
		init = &ExprStmt{X: x}
	}
	var cond AstExpr
	if p.tok.Kind != TK_SEMICOLON {
		cond = p.expression()
	}
	p.expect(TK_SEMICOLON, ";")
	var post AstExpr
	if p.tok.Kind != TK_RPAREN {
		post = p.expression()
	}
	p.expect(TK_RPAREN, ")")
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: p.statement()}
}

func (p *Parser) switchStmt() AstStmt {
	p.advance()
	p.expect(TK_LPAREN, "(")
	tag := p.expression()
	p.expect(TK_RPAREN, ")")
	p.expect(TK_LBRACE, "{")
	sw := &SwitchStmt{Tag: tag}
	for p.tok.Kind != TK_RBRACE {
		sw.Body = append(sw.Body, p.statement())
	}
	p.expect(TK_RBRACE, "}")
	return sw
}

// -----------------------------------------------------------------------------
// Initializers

func (p *Parser) initList() *InitList {
	p.expect(TK_LBRACE, "{")
	il := &InitList{}
	for p.tok.Kind != TK_RBRACE {
		il.Items = append(il.Items, p.initItem())
		if p.tok.Kind == TK_COMMA {
			p.advance()
			continue
		}
		break
	}
	p.expect(TK_RBRACE, "}")
	return il
}

func (p *Parser) initItem() *InitItem {
	item := &InitItem{}
	for p.tok.Kind == TK_LBRACKET || p.tok.Kind == TK_DOT {
		if p.tok.Kind == TK_LBRACKET {
			p.advance()
			item.IsIndex = true
			item.Index = foldConstInt(p.conditional())
			p.expect(TK_RBRACKET, "]")
		} else {
			p.advance()
			item.FieldName = p.identText()
		}
	}
	if item.IsIndex || item.FieldName != "" {
		p.expect(TK_ASSIGN, "=")
	}
	if p.tok.Kind == TK_LBRACE {
		item.Nested = p.initList()
	} else {
		item.Value = p.assignExpr()
	}
	return item
}

// -----------------------------------------------------------------------------
// Expressions, by precedence level (lowest to highest): comma, assignment,
// conditional, logical-or, logical-and, bit-or, bit-xor, bit-and, equality,
// relational, shift, additive, multiplicative, cast, unary, postfix, primary.

func (p *Parser) expression() AstExpr {
	left := p.assignExpr()
	for p.tok.Kind == TK_COMMA {
		pos := p.tok.Pos
		p.advance()
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: BinComma, Left: left, Right: p.assignExpr()}
	}
	return left
}

var assignOpToBin = map[TokenKind]BinOp{
	TK_PLUS_ASSIGN:    BinAdd,
	TK_MINUS_ASSIGN:   BinSub,
	TK_STAR_ASSIGN:    BinMul,
	TK_SLASH_ASSIGN:   BinDiv,
	TK_PERCENT_ASSIGN: BinMod,
	TK_AMP_ASSIGN:     BinAnd,
	TK_PIPE_ASSIGN:    BinOr,
	TK_CARET_ASSIGN:   BinXor,
	TK_LSHIFT_ASSIGN:  BinShl,
	TK_RSHIFT_ASSIGN:  BinShr,
}

func (p *Parser) assignExpr() AstExpr {
	left := p.conditional()
	if !p.tok.Kind.IsAssignOp() {
		return left
	}
	op := p.tok.Kind
	pos := p.tok.Pos
	p.advance()
	right := p.assignExpr()
	if op == TK_ASSIGN {
		return &AssignExpr{Expr: Expr{Pos: pos}, Left: left, Right: right}
	}
	return &AssignExpr{Expr: Expr{Pos: pos}, Op: assignOpToBin[op], IsCompound: true, Left: left, Right: right}
}

func (p *Parser) conditional() AstExpr {
	cond := p.logicalOr()
	if p.tok.Kind != TK_QUESTION {
		return cond
	}
	pos := p.tok.Pos
	p.advance()
	then := p.expression()
	p.expect(TK_COLON, ":")
	els := p.conditional()
	return &CondExpr{Expr: Expr{Pos: pos}, Cond: cond, Then: then, Else: els}
}

func (p *Parser) logicalOr() AstExpr {
	left := p.logicalAnd()
	for p.tok.Kind == TK_LOGOR {
		pos := p.tok.Pos
		p.advance()
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: BinLogOr, Left: left, Right: p.logicalAnd()}
	}
	return left
}

func (p *Parser) logicalAnd() AstExpr {
	left := p.bitOr()
	for p.tok.Kind == TK_LOGAND {
		pos := p.tok.Pos
		p.advance()
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: BinLogAnd, Left: left, Right: p.bitOr()}
	}
	return left
}

func (p *Parser) bitOr() AstExpr {
	left := p.bitXor()
	for p.tok.Kind == TK_PIPE {
		pos := p.tok.Pos
		p.advance()
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: BinOr, Left: left, Right: p.bitXor()}
	}
	return left
}

func (p *Parser) bitXor() AstExpr {
	left := p.bitAnd()
	for p.tok.Kind == TK_CARET {
		pos := p.tok.Pos
		p.advance()
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: BinXor, Left: left, Right: p.bitAnd()}
	}
	return left
}

func (p *Parser) bitAnd() AstExpr {
	left := p.equality()
	for p.tok.Kind == TK_AMP {
		pos := p.tok.Pos
		p.advance()
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: BinAnd, Left: left, Right: p.equality()}
	}
	return left
}

func (p *Parser) equality() AstExpr {
	left := p.relational()
	for p.tok.Kind == TK_EQ || p.tok.Kind == TK_NE {
		op, pos := p.tok.Kind, p.tok.Pos
		p.advance()
		bo := BinEQ
		if op == TK_NE {
			bo = BinNE
		}
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: bo, Left: left, Right: p.relational()}
	}
	return left
}

var relOpToBin = map[TokenKind]BinOp{TK_LT: BinLT, TK_GT: BinGT, TK_LE: BinLE, TK_GE: BinGE}

func (p *Parser) relational() AstExpr {
	left := p.shift()
	for p.tok.Kind.IsRelOp() {
		op, pos := p.tok.Kind, p.tok.Pos
		p.advance()
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: relOpToBin[op], Left: left, Right: p.shift()}
	}
	return left
}

func (p *Parser) shift() AstExpr {
	left := p.additive()
	for p.tok.Kind == TK_LSHIFT || p.tok.Kind == TK_RSHIFT {
		op, pos := p.tok.Kind, p.tok.Pos
		p.advance()
		bo := BinShl
		if op == TK_RSHIFT {
			bo = BinShr
		}
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: bo, Left: left, Right: p.additive()}
	}
	return left
}

func (p *Parser) additive() AstExpr {
	left := p.multiplicative()
	for p.tok.Kind == TK_PLUS || p.tok.Kind == TK_MINUS {
		op, pos := p.tok.Kind, p.tok.Pos
		p.advance()
		bo := BinAdd
		if op == TK_MINUS {
			bo = BinSub
		}
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: bo, Left: left, Right: p.multiplicative()}
	}
	return left
}

func (p *Parser) multiplicative() AstExpr {
	left := p.cast()
	for p.tok.Kind == TK_STAR || p.tok.Kind == TK_SLASH || p.tok.Kind == TK_PERCENT {
		op, pos := p.tok.Kind, p.tok.Pos
		p.advance()
		var bo BinOp
		switch op {
		case TK_STAR:
			bo = BinMul
		case TK_SLASH:
			bo = BinDiv
		default:
			bo = BinMod
		}
		left = &BinaryExpr{Expr: Expr{Pos: pos}, Op: bo, Left: left, Right: p.cast()}
	}
	return left
}

// cast handles both C-style casts "(T)x" and parenthesised sub-expressions;
// it disambiguates by peeking at the token after '(' to see whether it
// starts a type.
func (p *Parser) cast() AstExpr {
	if p.tok.Kind == TK_LPAREN && p.isDeclStart(p.peek()) {
		pos := p.tok.Pos
		p.advance()
		ty := p.typeName()
		p.expect(TK_RPAREN, ")")
		return &CastExpr{Expr: Expr{Pos: pos, Type: ty}, X: p.cast()}
	}
	return p.unary()
}

func (p *Parser) unary() AstExpr {
	pos := p.tok.Pos
	switch p.tok.Kind {
	case TK_PLUS:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryPlus, X: p.cast()}
	case TK_MINUS:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryNeg, X: p.cast()}
	case TK_BANG:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryNot, X: p.cast()}
	case TK_TILDE:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryBitNot, X: p.cast()}
	case TK_AMP:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryAddr, X: p.cast()}
	case TK_STAR:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryDeref, X: p.cast()}
	case TK_INC:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryPreInc, X: p.unary()}
	case TK_DEC:
		p.advance()
		return &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryPreDec, X: p.unary()}
	case KW_SIZEOF:
		p.advance()
		if p.tok.Kind == TK_LPAREN && p.isDeclStart(p.peek()) {
			p.advance()
			ty := p.typeName()
			p.expect(TK_RPAREN, ")")
			return &SizeofExpr{Expr: Expr{Pos: pos, Type: TULong}, OfType: ty}
		}
		return &SizeofExpr{Expr: Expr{Pos: pos, Type: TULong}, X: p.unary()}
	}
	return p.postfix()
}

func (p *Parser) postfix() AstExpr {
	x := p.primary()
	for {
		pos := p.tok.Pos
		switch p.tok.Kind {
		case TK_LBRACKET:
			p.advance()
			idx := p.expression()
			p.expect(TK_RBRACKET, "]")
			x = &IndexExpr{Expr: Expr{Pos: pos}, X: x, Index: idx}
		case TK_LPAREN:
			p.advance()
			var args []AstExpr
			for p.tok.Kind != TK_RPAREN {
				args = append(args, p.assignExpr())
				if p.tok.Kind == TK_COMMA {
					p.advance()
					continue
				}
				break
			}
			p.expect(TK_RPAREN, ")")
			x = &CallExpr{Expr: Expr{Pos: pos}, Callee: x, Args: args}
		case TK_DOT:
			p.advance()
			x = &MemberExpr{Expr: Expr{Pos: pos}, X: x, Name: p.identText()}
		case TK_ARROW:
			p.advance()
			x = &MemberExpr{Expr: Expr{Pos: pos}, X: x, Name: p.identText(), Arrow: true}
		case TK_INC:
			p.advance()
			x = &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryPostInc, X: x}
		case TK_DEC:
			p.advance()
			x = &UnaryExpr{Expr: Expr{Pos: pos}, Op: UnaryPostDec, X: x}
		default:
			return x
		}
	}
}

func (p *Parser) primary() AstExpr {
	pos := p.tok.Pos
	switch p.tok.Kind {
	case LIT_INT:
		v := p.tok.IVal
		p.advance()
		return &IntLit{Expr: Expr{Pos: pos, Type: TInt}, Value: v}
	case LIT_FLOAT:
		v := p.tok.FVal
		p.advance()
		return &FloatLit{Expr: Expr{Pos: pos, Type: TDouble}, Value: v}
	case LIT_CHAR:
		v := p.tok.IVal
		p.advance()
		return &CharLit{Expr: Expr{Pos: pos, Type: TChar}, Value: int32(v)}
	case LIT_STR:
		var sb []byte
		for p.tok.Kind == LIT_STR {
			sb = append(sb, p.tok.Text...)
			p.advance()
		}
		return &StrLit{Expr: Expr{Pos: pos, Type: PointerTo(TChar)}, Value: string(sb)}
	case TK_IDENT:
		name := p.tok.Text
		p.advance()
		return &Ident{Expr: Expr{Pos: pos}, Name: name}
	case TK_LPAREN:
		p.advance()
		x := p.expression()
		p.expect(TK_RPAREN, ")")
		return x
	}
	errorAt(pos, "unexpected token %q in expression", p.tok.Text)
	return nil
}
