package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/mark3labs/mcp-go/mcp"
)

// CalculatorToolName 是计算器工具暴露给模型的名称。
const CalculatorToolName = "calculator"

// Calculator 返回计算器工具：对算术表达式求值。
func Calculator() Tool {
	return Tool{
		Definition: mcp.NewTool(CalculatorToolName,
			mcp.WithDescription("Evaluate an arithmetic expression. Supports + - * / % ^ (or **), parentheses, decimals and functions such as abs, round, min and max."),
			mcp.WithString("expression", mcp.Required(), mcp.Description("The expression to evaluate, e.g. '15 * 23 + 47'.")),
		),
		Handler: handleCalculator,
	}
}

func handleCalculator(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := Evaluate(expression)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot evaluate %q: %v", expression, err)), nil
	}
	return mcp.NewToolResultText(FormatNumber(value)), nil
}

// FormatNumber 以最短形式输出结果，整数不带小数点。
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var (
	errDivisionByZero = errors.New("division by zero")
	errEmpty          = errors.New("expression is empty")
)

// calculatorEnv 是空的求值环境，表达式中不允许出现变量。
type calculatorEnv struct{}

// Evaluate 用 expr 对表达式求值。支持 + - * / % ^ (或 **)、括号以及 abs、round 等内置函数。
// 除法与取模会检查除数为零，结果必须是有限数值。
func Evaluate(expression string) (float64, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return 0, errEmpty
	}

	program, err := expr.Compile(expression,
		expr.Env(calculatorEnv{}),
		expr.Function("div", divide),
		expr.Function("mod", modulo),
		expr.Patch(checkedDivision{}),
	)
	if err != nil {
		return 0, err
	}
	out, err := expr.Run(program, calculatorEnv{})
	if err != nil {
		return 0, err
	}

	v, ok := toFloat(out)
	if !ok {
		return 0, fmt.Errorf("result %v is not a number", out)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

// checkedDivision 把 / 和 % 改写为 div、mod 函数调用。
type checkedDivision struct{}

func (checkedDivision) Visit(node *ast.Node) {
	n, ok := (*node).(*ast.BinaryNode)
	if !ok {
		return
	}
	var fn string
	switch n.Operator {
	case "/":
		fn = "div"
	case "%":
		fn = "mod"
	default:
		return
	}
	ast.Patch(node, &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: fn},
		Arguments: []ast.Node{n.Left, n.Right},
	})
}

func divide(params ...any) (any, error) {
	a, b, err := operands(params)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, errDivisionByZero
	}
	return a / b, nil
}

func modulo(params ...any) (any, error) {
	a, b, err := operands(params)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, errDivisionByZero
	}
	x, xInt := params[0].(int)
	y, yInt := params[1].(int)
	if xInt && yInt {
		return x % y, nil
	}
	return math.Mod(a, b), nil
}

func operands(params []any) (float64, float64, error) {
	if len(params) != 2 {
		return 0, 0, fmt.Errorf("expected 2 operands, got %d", len(params))
	}
	a, ok := toFloat(params[0])
	if !ok {
		return 0, 0, fmt.Errorf("operand %v is not a number", params[0])
	}
	b, ok := toFloat(params[1])
	if !ok {
		return 0, 0, fmt.Errorf("operand %v is not a number", params[1])
	}
	return a, b, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
