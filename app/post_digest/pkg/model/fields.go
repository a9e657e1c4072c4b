package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// field 一个 JSON 对象成员
type field struct {
	Key   string
	Value json.RawMessage
}

// fields 保持原始键顺序的 JSON 对象
type fields []field

func decodeObject(data []byte) (fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected JSON object")
	}

	var out fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out.set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f fields) clone() fields {
	if f == nil {
		return nil
	}
	out := make(fields, len(f))
	copy(out, f)
	return out
}

func (f fields) get(key string) (json.RawMessage, bool) {
	for _, kv := range f {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

func (f *fields) set(key string, v json.RawMessage) {
	for i := range *f {
		if (*f)[i].Key == key {
			(*f)[i].Value = v
			return
		}
	}
	*f = append(*f, field{Key: key, Value: v})
}

// str 宽松读取字符串字段: 数字按字面值返回，null 与缺失返回空串
func (f fields) str(key string) string {
	v, ok := f.get(key)
	if !ok {
		return ""
	}
	return looseString(v)
}

// setString 写回字符串字段
//
// 原值宽松解码后与 val 相同时保留原始字面量(例如数字 id)；
// 字段不存在且 val 为空时不新增。
func (f *fields) setString(key, val string) {
	if old, ok := f.get(key); ok {
		if looseString(old) == val {
			return
		}
	} else if val == "" {
		return
	}
	b, _ := marshalNoEscape(val)
	f.set(key, b)
}

func (f fields) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if len(kv.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(kv.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func looseString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || isNull(v) {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
		return ""
	}
	if v[0] == '-' || (v[0] >= '0' && v[0] <= '9') {
		return string(v)
	}
	return ""
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

// marshalNoEscape 与 json.Marshal 相同，但不转义 <, >, &
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
