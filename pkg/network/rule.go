package network

// RuleObject identifies what a rule premise inspects
type RuleObject int

const (
	// RuleNode premises inspect a node variable
	RuleNode RuleObject = iota
	// RuleLink premises inspect a link variable
	RuleLink
	// RuleSystem premises inspect the simulation clock
	RuleSystem
)

// RuleVariable names the quantity a premise compares
type RuleVariable int

const (
	VarDemand RuleVariable = iota
	VarHead
	VarGrade
	VarLevel
	VarPressure
	VarFlow
	VarStatus
	VarSetting
	VarFillTime
	VarDrainTime
	VarTime
	VarClockTime
)

// Relop is a relational operator in a rule premise
type Relop int

const (
	EQ Relop = iota
	NE
	LT
	GT
	LE
	GE
)

// Logop connects a premise to the running truth value of its rule
type Logop int

const (
	// And requires both sides to hold
	And Logop = iota
	// Or lets either side satisfy the chain built so far
	Or
)

// Premise is one condition of a rule.
type Premise struct {
	Logop    Logop
	Object   RuleObject
	Index    int // node or link index, unused for RuleSystem
	Variable RuleVariable
	Relop    Relop
	Status   Status  // compared for VarStatus premises
	Value    float64 // compared otherwise
}

// RuleAction sets a link's status and/or setting when its rule fires.
type RuleAction struct {
	Link    int
	Status  Status  // StatusUnset to leave status alone
	Setting float64 // NoSetting to leave setting alone
}

// Rule is an IF/THEN/ELSE control rule with a priority used for
// conflict resolution across rules firing in the same step.
type Rule struct {
	Name     string
	Priority float64
	Premises []Premise
	Then     []RuleAction
	Else     []RuleAction
}

// AddRule appends a rule after validating its object references.
func (n *Network) AddRule(r *Rule) (int, error) {
	if len(r.Premises) == 0 || len(r.Then) == 0 {
		return 0, newIDError("AddRule", "rule", r.Name, ErrInvalidParameter)
	}
	for _, p := range r.Premises {
		switch p.Object {
		case RuleNode:
			if p.Index < 0 || p.Index >= len(n.Nodes) {
				return 0, newIDError("AddRule", "rule", r.Name, ErrInvalidIndex)
			}
		case RuleLink:
			if p.Index < 0 || p.Index >= len(n.Links) {
				return 0, newIDError("AddRule", "rule", r.Name, ErrInvalidIndex)
			}
		}
		if !premiseVariableOK(p.Object, p.Variable) {
			return 0, newIDError("AddRule", "rule", r.Name, ErrInvalidParameter)
		}
	}
	for _, a := range append(append([]RuleAction{}, r.Then...), r.Else...) {
		if a.Link < 0 || a.Link >= len(n.Links) {
			return 0, newIDError("AddRule", "rule", r.Name, ErrInvalidIndex)
		}
	}
	n.Rules = append(n.Rules, r)
	return len(n.Rules) - 1, nil
}

// premiseVariableOK reports whether a premise variable can be read
// from the given object kind. Status is a link variable; level and the
// fill/drain projections are node variables; elapsed and clock time
// belong to the system object.
func premiseVariableOK(o RuleObject, v RuleVariable) bool {
	switch o {
	case RuleSystem:
		return v == VarDemand || v == VarTime || v == VarClockTime
	case RuleLink:
		return v == VarFlow || v == VarStatus || v == VarSetting
	case RuleNode:
		switch v {
		case VarDemand, VarHead, VarGrade, VarLevel, VarPressure, VarFillTime, VarDrainTime:
			return true
		}
	}
	return false
}

// DeleteRule removes the rule at index i, compacting the rest.
func (n *Network) DeleteRule(i int) error {
	if i < 0 || i >= len(n.Rules) {
		return newIndexError("DeleteRule", "rule", i, ErrInvalidIndex)
	}
	n.Rules = append(n.Rules[:i], n.Rules[i+1:]...)
	return nil
}
