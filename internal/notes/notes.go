// Package notes 保存一次操作中应用的默认值与回退说明。
package notes

import "fmt"

// Notes 是一次操作累积的说明文本。零值即可使用；每个操作使用独立的值，
// 并随结果一起返回，不在调用之间共享。
type Notes []string

// Add 追加一条说明，空字符串被忽略。
func (n *Notes) Add(note string) {
	if note == "" {
		return
	}
	*n = append(*n, note)
}

// Addf 追加一条格式化说明。
func (n *Notes) Addf(format string, args ...any) {
	n.Add(fmt.Sprintf(format, args...))
}

// Merge 按顺序合并多组说明，返回新值。
func Merge(groups ...Notes) Notes {
	var out Notes
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Clone 返回独立副本。
func (n Notes) Clone() Notes {
	if len(n) == 0 {
		return nil
	}
	return append(Notes(nil), n...)
}

// Strings 返回普通字符串切片，便于序列化。
func (n Notes) Strings() []string {
	return []string(n.Clone())
}
