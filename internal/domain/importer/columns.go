package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/medrank/internal/domain/model"
)

type valueKind int

const (
	kindText valueKind = iota
	kindTotal
	kindCounter
	kindPrice
	kindHumanScore
)

// column describes one CSV column. key is the doctor's JSON field name.
type column struct {
	key         string
	aliases     []string
	kind        valueKind
	required    bool
	description string
}

// humanScoreScale converts the 0-100 CSV rating to the 0-10 model scale.
const humanScoreScale = 10.0

func columns() []column {
	cols := []column{
		{key: "id", kind: kindText, description: "医生ID（可选，缺省按行号生成 doc_0001）"},
		{key: "name", kind: kindText, required: true, description: "医生姓名（必填）"},
		{key: "title", kind: kindText, description: "职称"},
		{key: "region", kind: kindText, description: "地区"},
		{key: "department", kind: kindText, description: "科室"},
		{key: "agency_name", aliases: []string{"institution"}, kind: kindText, description: "机构名称（可选）"},
		{key: "agency_price", aliases: []string{"institution_price"}, kind: kindPrice, description: "机构报价（元，非负数字，可选）"},
		{key: "total_followers", aliases: []string{"total_fans"}, kind: kindTotal, description: "总粉丝量（非负整数）"},
		{key: "total_likes", kind: kindTotal, description: "总获赞量（非负整数）"},
		{key: "total_works", kind: kindTotal, description: "总作品数（非负整数）"},
		{key: "avg_play_count", kind: kindCounter, description: "平均播放量（非负整数，可选）"},
	}
	metrics := []struct{ name, alias, label string }{
		{"likes", "", "新增点赞"},
		{"followers", "fans", "净增粉丝"},
		{"shares", "", "新增分享"},
		{"comments", "", "新增评论"},
		{"works", "", "新增作品"},
	}
	for _, w := range model.Windows() {
		for _, m := range metrics {
			c := column{
				key:         fmt.Sprintf("%s_%dd", m.name, w),
				kind:        kindCounter,
				description: fmt.Sprintf("%d天%s（非负整数，可选）", w, m.label),
			}
			if m.alias != "" {
				c.aliases = []string{fmt.Sprintf("%s_%dd", m.alias, w)}
			}
			cols = append(cols, c)
		}
	}
	return append(cols,
		column{key: "performance_score", kind: kindHumanScore, description: "表现力评分（0-100小数，可选）"},
		column{key: "affinity_score", kind: kindHumanScore, description: "亲和力评分（0-100小数，可选）"},
		column{key: "editing_score", kind: kindHumanScore, description: "剪辑水平评分（0-100小数，可选）"},
		column{key: "video_quality_score", aliases: []string{"visual_score"}, kind: kindHumanScore, description: "画面质量评分（0-100小数，可选）"},
	)
}

// lookup maps lower-cased header names and aliases to columns.
func lookup(cols []column) map[string]column {
	m := make(map[string]column, len(cols)*2)
	for _, c := range cols {
		m[c.key] = c
		for _, a := range c.aliases {
			m[a] = c
		}
	}
	return m
}

func (c column) rule() string {
	switch c.kind {
	case kindTotal:
		return "非负整数，空值按0处理"
	case kindCounter:
		return "非负整数，空值表示缺失"
	case kindPrice:
		return "非负数字，空值表示未报价"
	case kindHumanScore:
		return "0-100之间的数字，导入后按0-10计分"
	default:
		if c.required {
			return "非空文本"
		}
		return "文本"
	}
}

// parse converts a raw cell into a JSON-ready value. ok is false when the
// cell is empty and the field should be left out. msg is non-empty on
// failure.
func (c column) parse(raw string) (v any, ok bool, msg string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if c.kind == kindTotal {
			return int64(0), true, ""
		}
		return nil, false, ""
	}
	switch c.kind {
	case kindTotal, kindCounter:
		n, err := parseCount(raw)
		if err != nil {
			return nil, false, fmt.Sprintf("%s必须是整数", c.key)
		}
		if n < 0 {
			return nil, false, fmt.Sprintf("%s不能为负数", c.key)
		}
		return n, true, ""
	case kindPrice:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false, fmt.Sprintf("%s必须是数字", c.key)
		}
		if f < 0 {
			return nil, false, fmt.Sprintf("%s不能为负数", c.key)
		}
		return f, true, ""
	case kindHumanScore:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) {
			return nil, false, fmt.Sprintf("%s必须是数字", c.key)
		}
		if f < 0 || f > 100 {
			return nil, false, fmt.Sprintf("%s必须在0-100之间", c.key)
		}
		return f / humanScoreScale, true, ""
	default:
		return raw, true, ""
	}
}

// parseCount accepts integers and integral decimals such as "1200.0".
func parseCount(raw string) (int64, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
		return 0, strconv.ErrSyntax
	}
	return int64(f), nil
}
