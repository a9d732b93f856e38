// Package formula evaluates the restricted arithmetic formulas of calculated
// metrics. Formulas bind single-letter variables to other metrics or data
// source queries and combine them with + - * / and parentheses.
//
// Evaluation is a dedicated tokenizer, shunting-yard parser and RPN stack
// machine. There is no dynamic code generation, no property access and no
// ambient state: anything outside the character whitelist is rejected before
// a single token is produced.
package formula

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// validPattern is the character whitelist for formula text after
// normalization. Anything outside it is rejected, never evaluated.
var validPattern = regexp.MustCompile(`^[0-9\s+\-*/().A-Z]*$`)

// Normalize uppercases and trims a formula. Input is case-insensitive;
// variables are always uppercase afterwards.
func Normalize(formula string) string {
	return strings.ToUpper(strings.TrimSpace(formula))
}

// Validate rejects formulas containing characters outside the whitelist.
func Validate(formula string) error {
	if formula == "" {
		return fmt.Errorf("formula is empty")
	}
	if !validPattern.MatchString(formula) {
		return fmt.Errorf("formula contains disallowed characters")
	}
	return nil
}

// Variables returns the distinct variable letters appearing in a normalized
// formula, in order of first appearance.
func Variables(formula string) []string {
	seen := make(map[rune]bool)
	var vars []string
	for _, r := range formula {
		if r >= 'A' && r <= 'Z' && !seen[r] {
			seen[r] = true
			vars = append(vars, string(r))
		}
	}
	return vars
}

// Evaluate parses and evaluates a normalized formula with the given variable
// bindings. The result must be finite; division by zero, unbound variables
// and malformed expressions are errors.
func Evaluate(formula string, vars map[string]float64) (float64, error) {
	if err := Validate(formula); err != nil {
		return 0, err
	}
	tokens, err := tokenize(formula)
	if err != nil {
		return 0, err
	}
	rpn, err := toRPN(tokens)
	if err != nil {
		return 0, err
	}
	value, err := evalRPN(rpn, vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("formula result is not a finite number")
	}
	return value, nil
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenVariable
	tokenOperator
	tokenLeftParen
	tokenRightParen
)

type token struct {
	kind  tokenKind
	text  string
	value float64
}

func tokenize(formula string) ([]token, error) {
	var tokens []token
	runes := []rune(formula)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			i++
		case r >= '0' && r <= '9' || r == '.':
			start := i
			for i < len(runes) && (runes[i] >= '0' && runes[i] <= '9' || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q in formula", text)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, value: value})
		case r >= 'A' && r <= 'Z':
			tokens = append(tokens, token{kind: tokenVariable, text: string(r)})
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{kind: tokenOperator, text: string(r)})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenLeftParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenRightParen, text: ")"})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in formula", string(r))
		}
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("formula has no tokens")
	}
	return tokens, nil
}

// unaryMinus is the internal operator for negation, distinguished from
// binary subtraction during parsing.
const unaryMinus = "neg"

func precedence(op string) int {
	switch op {
	case unaryMinus:
		return 3
	case "*", "/":
		return 2
	default:
		return 1
	}
}

// toRPN converts tokens to reverse Polish notation via shunting-yard.
func toRPN(tokens []token) ([]token, error) {
	var output []token
	var stack []token

	// prevValueLike tracks whether the previous token can terminate an
	// operand, which both disambiguates unary minus and catches adjacent
	// operands with no operator between them.
	prevValueLike := false

	for _, t := range tokens {
		switch t.kind {
		case tokenNumber, tokenVariable:
			if prevValueLike {
				return nil, fmt.Errorf("missing operator before %q", t.text)
			}
			output = append(output, t)
			prevValueLike = true
		case tokenOperator:
			op := t.text
			if op == "-" && !prevValueLike {
				op = unaryMinus
			} else if !prevValueLike {
				return nil, fmt.Errorf("operator %q has no left operand", t.text)
			}
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.kind != tokenOperator {
					break
				}
				// Unary minus is right-associative.
				if op == unaryMinus && precedence(top.text) <= precedence(op) {
					break
				}
				if op != unaryMinus && precedence(top.text) < precedence(op) {
					break
				}
				output = append(output, top)
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, token{kind: tokenOperator, text: op})
			prevValueLike = false
		case tokenLeftParen:
			if prevValueLike {
				return nil, fmt.Errorf("missing operator before %q", t.text)
			}
			stack = append(stack, t)
			prevValueLike = false
		case tokenRightParen:
			matched := false
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.kind == tokenLeftParen {
					matched = true
					break
				}
				output = append(output, top)
			}
			if !matched {
				return nil, fmt.Errorf("unbalanced parentheses in formula")
			}
			prevValueLike = true
		}
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.kind == tokenLeftParen {
			return nil, fmt.Errorf("unbalanced parentheses in formula")
		}
		output = append(output, top)
	}
	return output, nil
}

func evalRPN(rpn []token, vars map[string]float64) (float64, error) {
	var stack []float64

	push := func(v float64) { stack = append(stack, v) }
	pop := func() (float64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for _, t := range rpn {
		switch t.kind {
		case tokenNumber:
			push(t.value)
		case tokenVariable:
			value, ok := vars[t.text]
			if !ok {
				return 0, fmt.Errorf("variable %s is not bound", t.text)
			}
			push(value)
		case tokenOperator:
			if t.text == unaryMinus {
				v, ok := pop()
				if !ok {
					return 0, fmt.Errorf("malformed expression")
				}
				push(-v)
				continue
			}
			right, okR := pop()
			left, okL := pop()
			if !okR || !okL {
				return 0, fmt.Errorf("malformed expression")
			}
			switch t.text {
			case "+":
				push(left + right)
			case "-":
				push(left - right)
			case "*":
				push(left * right)
			case "/":
				if right == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				push(left / right)
			}
		}
	}

	if len(stack) != 1 {
		return 0, fmt.Errorf("malformed expression")
	}
	return stack[0], nil
}
