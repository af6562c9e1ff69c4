package toolset

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Builtin tool set names.
const (
	SetEcommerce   = "ecommerce"
	SetAgriculture = "agriculture"
	SetGeneral     = "general"
)

// builtinSets constructs a fresh copy of the builtin tool sets. A fresh copy
// is returned on every call so manifest overrides never leak between reloads.
func builtinSets() map[string]*Set {
	sets := map[string]*Set{
		SetEcommerce: {
			Name:        SetEcommerce,
			Description: "Product catalog, orders and inventory",
			tools: toolMap(
				&Tool{
					Name:        "search_products",
					Description: "Search the product catalog by keyword",
					Parameters: []Parameter{
						{Name: "query", Type: "string", Description: "Search keywords", Required: true},
						{Name: "limit", Type: "integer", Description: "Maximum results to return"},
					},
					Handler: searchProducts,
				},
				&Tool{
					Name:        "get_order_status",
					Description: "Look up the status of an order by id",
					Parameters: []Parameter{
						{Name: "order_id", Type: "string", Description: "Order identifier", Required: true},
					},
					Handler: getOrderStatus,
				},
				&Tool{
					Name:        "check_inventory",
					Description: "Check stock level for a product SKU",
					Parameters: []Parameter{
						{Name: "sku", Type: "string", Description: "Product SKU", Required: true},
					},
					Handler: checkInventory,
				},
			),
		},
		SetAgriculture: {
			Name:        SetAgriculture,
			Description: "Crop planning and field conditions",
			tools: toolMap(
				&Tool{
					Name:        "crop_calendar",
					Description: "Planting and harvest windows for a crop",
					Parameters: []Parameter{
						{Name: "crop", Type: "string", Description: "Crop name", Required: true},
					},
					Handler: cropCalendar,
				},
				&Tool{
					Name:        "weather_outlook",
					Description: "Short-range weather outlook for a region",
					Parameters: []Parameter{
						{Name: "region", Type: "string", Description: "Region name", Required: true},
					},
					Handler: weatherOutlook,
				},
				&Tool{
					Name:        "soil_analysis",
					Description: "Soil profile summary for a field",
					Parameters: []Parameter{
						{Name: "field_id", Type: "string", Description: "Field identifier", Required: true},
					},
					Handler: soilAnalysis,
				},
			),
		},
		SetGeneral: {
			Name:        SetGeneral,
			Description: "General-purpose utilities",
			tools: toolMap(
				&Tool{
					Name:        "calculator",
					Description: "Evaluate a basic arithmetic expression",
					Parameters: []Parameter{
						{Name: "a", Type: "number", Description: "Left operand", Required: true},
						{Name: "op", Type: "string", Description: "Operator: + - * /", Required: true},
						{Name: "b", Type: "number", Description: "Right operand", Required: true},
					},
					Handler: calculator,
				},
				&Tool{
					Name:        "current_time",
					Description: "Current server time in RFC 3339 format",
					Parameters:  []Parameter{},
					Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
						return time.Now().Format(time.RFC3339), nil
					},
				},
			),
		},
	}
	return sets
}

func toolMap(tools ...*Tool) map[string]*Tool {
	m := make(map[string]*Tool, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return m
}

func stringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %s must be a non-empty string", name)
	}
	return s, nil
}

func numberArg(args map[string]interface{}, name string) (float64, error) {
	v, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("missing required argument: %s", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("argument %s must be a number", name)
	}
}

func searchProducts(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	catalog := []map[string]interface{}{
		{"sku": "SKU-1001", "name": "Wireless Keyboard", "price": 49.90},
		{"sku": "SKU-1002", "name": "Mechanical Keyboard", "price": 129.00},
		{"sku": "SKU-2001", "name": "USB-C Dock", "price": 89.50},
		{"sku": "SKU-3001", "name": "Laptop Stand", "price": 39.00},
	}

	matches := []map[string]interface{}{}
	needle := strings.ToLower(query)
	for _, item := range catalog {
		if strings.Contains(strings.ToLower(item["name"].(string)), needle) {
			matches = append(matches, item)
		}
	}
	return map[string]interface{}{"query": query, "results": matches}, nil
}

func getOrderStatus(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	orderID, err := stringArg(args, "order_id")
	if err != nil {
		return nil, err
	}

	// Derive a stable status from the id so repeated lookups agree.
	statuses := []string{"processing", "shipped", "delivered"}
	sum := 0
	for _, c := range orderID {
		sum += int(c)
	}
	return map[string]interface{}{
		"order_id": orderID,
		"status":   statuses[sum%len(statuses)],
	}, nil
}

func checkInventory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sku, err := stringArg(args, "sku")
	if err != nil {
		return nil, err
	}

	sum := 0
	for _, c := range sku {
		sum += int(c)
	}
	return map[string]interface{}{"sku": sku, "in_stock": sum % 97}, nil
}

func cropCalendar(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	crop, err := stringArg(args, "crop")
	if err != nil {
		return nil, err
	}

	calendar := map[string][2]string{
		"wheat": {"October", "June"},
		"maize": {"April", "September"},
		"rice":  {"May", "October"},
	}
	window, ok := calendar[strings.ToLower(crop)]
	if !ok {
		window = [2]string{"March", "August"}
	}
	return map[string]interface{}{
		"crop":    crop,
		"plant":   window[0],
		"harvest": window[1],
	}, nil
}

func weatherOutlook(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	region, err := stringArg(args, "region")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"region":  region,
		"outlook": "dry with seasonal temperatures",
		"days":    7,
	}, nil
}

func soilAnalysis(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fieldID, err := stringArg(args, "field_id")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"field_id": fieldID,
		"ph":       6.5,
		"texture":  "loam",
	}, nil
}

func calculator(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	a, err := numberArg(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := numberArg(args, "b")
	if err != nil {
		return nil, err
	}
	op, err := stringArg(args, "op")
	if err != nil {
		return nil, err
	}

	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return a / b, nil
	default:
		return nil, fmt.Errorf("unsupported operator: %s", op)
	}
}
