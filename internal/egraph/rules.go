package egraph

// Rule is a single named rewrite: Apply attempts a local rewrite at the
// given node only (no recursion); it reports whether it matched.
type Rule struct {
	Name  string
	Apply func(*Term) (*Term, bool)
}

// DefaultRules is the toy algebra carried from the original rewriting
// engine's example rule set (commute-add, commute-mul, add-0, mul-0,
// mul-1), extended with associativity, double-negation cancellation, and
// constant folding so the action space has real branching depth to
// contend with.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "commute-add", Apply: commute(OpAdd)},
		{Name: "commute-mul", Apply: commute(OpMul)},
		{Name: "add-0", Apply: addZero},
		{Name: "mul-0", Apply: mulZero},
		{Name: "mul-1", Apply: mulOne},
		{Name: "assoc-add", Apply: assoc(OpAdd)},
		{Name: "assoc-mul", Apply: assoc(OpMul)},
		{Name: "double-neg", Apply: doubleNeg},
		{Name: "const-fold", Apply: constFold},
	}
}

// commute rewrites (op a b) => (op b a) for the given commutative op.
func commute(op Op) func(*Term) (*Term, bool) {
	return func(t *Term) (*Term, bool) {
		if t.Op != op {
			return t, false
		}
		return &Term{Op: op, Kids: []*Term{t.Kids[1], t.Kids[0]}}, true
	}
}

// addZero rewrites (+ a 0) => a and (+ 0 a) => a.
func addZero(t *Term) (*Term, bool) {
	if t.Op != OpAdd {
		return t, false
	}
	if t.Kids[1].IsNum(0) {
		return t.Kids[0], true
	}
	if t.Kids[0].IsNum(0) {
		return t.Kids[1], true
	}
	return t, false
}

// mulZero rewrites (* a 0) => 0 and (* 0 a) => 0.
func mulZero(t *Term) (*Term, bool) {
	if t.Op != OpMul {
		return t, false
	}
	if t.Kids[1].IsNum(0) || t.Kids[0].IsNum(0) {
		return Lit(0), true
	}
	return t, false
}

// mulOne rewrites (* a 1) => a and (* 1 a) => a.
func mulOne(t *Term) (*Term, bool) {
	if t.Op != OpMul {
		return t, false
	}
	if t.Kids[1].IsNum(1) {
		return t.Kids[0], true
	}
	if t.Kids[0].IsNum(1) {
		return t.Kids[1], true
	}
	return t, false
}

// assoc rotates (op a (op b c)) => (op (op a b) c) for the given
// associative op.
func assoc(op Op) func(*Term) (*Term, bool) {
	return func(t *Term) (*Term, bool) {
		if t.Op != op || t.Kids[1].Op != op {
			return t, false
		}
		a, b, c := t.Kids[0], t.Kids[1].Kids[0], t.Kids[1].Kids[1]
		return &Term{Op: op, Kids: []*Term{{Op: op, Kids: []*Term{a, b}}, c}}, true
	}
}

// doubleNeg cancels a double negation: (- (- a)) => a.
func doubleNeg(t *Term) (*Term, bool) {
	if t.Op != OpNeg || t.Kids[0].Op != OpNeg {
		return t, false
	}
	return t.Kids[0].Kids[0], true
}

// constFold folds (op a b) into a literal when both operands are literals,
// and (- a) into a literal when a is one.
func constFold(t *Term) (*Term, bool) {
	if t.Op == OpNeg {
		if t.Kids[0].Op != OpNum {
			return t, false
		}
		return Lit(-t.Kids[0].Num), true
	}
	if t.Op != OpAdd && t.Op != OpMul {
		return t, false
	}
	a, b := t.Kids[0], t.Kids[1]
	if a.Op != OpNum || b.Op != OpNum {
		return t, false
	}
	if t.Op == OpAdd {
		return Lit(a.Num + b.Num), true
	}
	return Lit(a.Num * b.Num), true
}

// rewriteAll applies rule once at every node where it matches, bottom-up,
// mirroring one saturation iteration of the rewriting engine restricted to
// a single active rule. It reports whether any node matched.
func rewriteAll(t *Term, rule Rule) (*Term, bool) {
	if t == nil {
		return nil, false
	}

	matchedAny := false
	newKids := make([]*Term, len(t.Kids))
	for i, k := range t.Kids {
		rewritten, matched := rewriteAll(k, rule)
		newKids[i] = rewritten
		matchedAny = matchedAny || matched
	}
	node := t
	if matchedAny {
		node = &Term{Op: t.Op, Sym: t.Sym, Num: t.Num, Kids: newKids}
	}

	if result, matched := rule.Apply(node); matched {
		return result, true
	}
	return node, matchedAny
}
