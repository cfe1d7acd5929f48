package txbuilder

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"LedgerAgent-Kit/internal/notes"
)

// DefaultAutoRenewPeriod 是设置了自动续期账户但未指定周期时使用的周期（90 天，秒）。
const DefaultAutoRenewPeriod int64 = 7_776_000

// symbolPlaceholder 在名称中没有字母数字时作为代币符号。
const symbolPlaceholder = "TOKEN"

// fieldDefault 描述一个字段的默认值策略：apply 在字段缺省时写入默认值并返回该值，
// 字段已提供时返回 applied=false。note 为说明模板，%v 替换为写入的值。
type fieldDefault struct {
	field string
	note  string
	apply func(ctx context.Context) (value any, applied bool, err error)
}

// applyDefaults 按声明顺序应用默认值，返回产生的说明。
func applyDefaults(ctx context.Context, log *slog.Logger, rules []fieldDefault) (notes.Notes, error) {
	var n notes.Notes
	for _, rule := range rules {
		value, applied, err := rule.apply(ctx)
		if err != nil {
			return nil, err
		}
		if !applied {
			continue
		}
		log.Debug("应用默认值", slog.String("field", rule.field), slog.Any("value", value))
		if rule.note == "" {
			continue
		}
		if strings.Contains(rule.note, "%") {
			n.Addf(rule.note, value)
		} else {
			n.Add(rule.note)
		}
	}
	return n, nil
}

// DeriveSymbol 由代币名称生成符号：去掉非字母数字字符，截取前 5 个字符并转为大写，
// 结果为空时使用占位符。
func DeriveSymbol(name string) string {
	var b strings.Builder
	count := 0
	for _, r := range name {
		if count == 5 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
			count++
		}
	}
	if b.Len() == 0 {
		return symbolPlaceholder
	}
	return b.String()
}

