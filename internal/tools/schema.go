package tools

// ObjectSchema 构造 object 类型的参数 Schema
func ObjectSchema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		req := make([]any, 0, len(required))
		for _, name := range required {
			req = append(req, name)
		}
		schema["required"] = req
	}
	return schema
}

// StringProp 字符串参数
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// EnumProp 枚举字符串参数
func EnumProp(description string, values ...string) map[string]any {
	enum := make([]any, 0, len(values))
	for _, v := range values {
		enum = append(enum, v)
	}
	return map[string]any{"type": "string", "description": description, "enum": enum}
}

// NumberProp 数值参数
func NumberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// IntegerProp 整数参数，取值为闭区间 [lo, hi]
func IntegerProp(description string, lo, hi int) map[string]any {
	return map[string]any{"type": "integer", "description": description, "minimum": lo, "maximum": hi}
}
