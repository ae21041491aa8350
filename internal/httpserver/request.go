package httpserver

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// params reads request values with the documented precedence: query
// string first, then form body, then JSON body.
type params struct {
	c    *gin.Context
	body map[string]any
}

func newParams(c *gin.Context) *params {
	p := &params{c: c}
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body map[string]any
		if err := c.ShouldBindBodyWithJSON(&body); err == nil {
			p.body = body
		}
	}
	return p
}

func (p *params) str(name string) string {
	if v := p.c.Query(name); v != "" {
		return v
	}
	if v := p.c.PostForm(name); v != "" {
		return v
	}
	if v, ok := p.body[name]; ok {
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

func (p *params) int64(name string) int64 {
	if v := p.str(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func (p *params) intDefault(name string, def int) int {
	if v := p.c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if v := p.c.PostForm(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if v, ok := p.body[name]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return n
			}
		}
	}
	return def
}

// strMap reads a map-valued parameter; only the JSON body can carry
// one, query/form entries use the name[key] convention.
func (p *params) strMap(name string) map[string]string {
	out := map[string]string{}
	prefix := name + "["
	for key, values := range p.c.Request.URL.Query() {
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, "]") && len(values) > 0 {
			out[key[len(prefix):len(key)-1]] = values[0]
		}
	}
	if raw, ok := p.body[name].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				if _, exists := out[k]; !exists {
					out[k] = s
				}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// anyMap reads an arbitrary JSON object parameter from the body.
func (p *params) anyMap(name string) map[string]any {
	if raw, ok := p.body[name].(map[string]any); ok && len(raw) > 0 {
		return raw
	}
	return nil
}

// list reads an array-of-objects parameter from the JSON body.
func (p *params) list(name string) []map[string]any {
	raw, ok := p.body[name].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// decodeInto re-marshals a generic map into a typed struct.
func decodeInto(m map[string]any, dst any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
