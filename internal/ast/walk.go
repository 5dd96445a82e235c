/*
Copyright (C) 2026  The Konpeito Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package ast

// Walk calls visit on n and then recursively on every child node, depth
// first. It exists so passes that only care about a handful of node
// kinds (internal/hir's free-variable capture scan, in particular)
// don't need their own exhaustive traversal.
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch node := n.(type) {
	case *Program:
		walkAll(node.Body, visit)
	case *ArrayLit:
		walkAll(node.Elems, visit)
	case *HashLit:
		walkAll(node.Keys, visit)
		walkAll(node.Values, visit)
	case *RangeLit:
		Walk(node.Low, visit)
		Walk(node.High, visit)
	case *Call:
		Walk(node.Receiver, visit)
		walkAll(node.Args, visit)
		for _, kw := range node.KeywordArgs {
			Walk(kw.Value, visit)
		}
		if node.Block != nil {
			walkAll(node.Block.Body, visit)
		}
	case *BlockLit:
		walkAll(node.Body, visit)
	case *Lambda:
		walkAll(node.Body, visit)
	case *Assign:
		Walk(node.Target, visit)
		Walk(node.Value, visit)
	case *MultiAssign:
		walkAll(node.Targets, visit)
		Walk(node.Value, visit)
	case *CompoundAssign:
		Walk(node.Target, visit)
		Walk(node.Value, visit)
	case *If:
		Walk(node.Cond, visit)
		walkAll(node.Then, visit)
		walkAll(node.Else, visit)
	case *While:
		Walk(node.Cond, visit)
		walkAll(node.Body, visit)
	case *Break:
		Walk(node.Value, visit)
	case *Next:
		Walk(node.Value, visit)
	case *CaseIn:
		Walk(node.Subject, visit)
		for _, cl := range node.Clauses {
			walkPattern(cl.Pattern, visit)
			Walk(cl.Guard, visit)
			walkAll(cl.Body, visit)
		}
		walkAll(node.Else, visit)
	case *BeginRescue:
		walkAll(node.Body, visit)
		for _, r := range node.Rescues {
			walkAll(r.Body, visit)
		}
		walkAll(node.Else, visit)
		walkAll(node.Ensure, visit)
	case *Raise:
		Walk(node.Message, visit)
	case *Yield:
		walkAll(node.Args, visit)
	case *FiberNew:
		walkAll(node.Body, visit)
	case *FiberYield:
		walkAll(node.Args, visit)
	case *Return:
		Walk(node.Value, visit)
	case *MethodDef:
		walkAll(node.Body, visit)
	case *ClassDef:
		walkAll(node.Body, visit)
	case *ModuleDef:
		walkAll(node.Body, visit)
	case *SingletonClassDef:
		walkAll(node.Body, visit)
	case *ConstAssign:
		Walk(node.Value, visit)
	case *CVarAssign:
		Walk(node.Value, visit)
	}
}

func walkAll(nodes []Node, visit func(Node)) {
	for _, n := range nodes {
		Walk(n, visit)
	}
}

func walkPattern(p Pattern, visit func(Node)) {
	switch pat := p.(type) {
	case *LiteralPattern:
		Walk(pat.Value, visit)
	case *PinPattern:
		Walk(pat.Expr, visit)
	case *ArrayPattern:
		for _, sub := range pat.Head {
			walkPattern(sub, visit)
		}
		for _, sub := range pat.Tail {
			walkPattern(sub, visit)
		}
	case *HashPattern:
		for _, e := range pat.Required {
			if e.Pattern != nil {
				walkPattern(e.Pattern, visit)
			}
		}
	case *AlternationPattern:
		for _, alt := range pat.Alternatives {
			walkPattern(alt, visit)
		}
	}
}
