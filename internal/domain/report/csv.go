package report

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/ranking"
)

// CSVHeader is the column row of the export-csv report.
var CSVHeader = []string{
	"排名", "医生ID", "姓名", "职称", "地区", "科室", "机构", "粉丝数", "获赞数", "综合评分", "性价比",
	"账号分级指数", "成本效益指数", "数据趋势指数", "增长稳定性指数", "内容质量指数", "可信度指数", "ROI预测指数",
	"层级", "影响力", "价值指数", "机构报价",
	"作品数", "平均播放量",
	"7日点赞", "7日涨粉", "7日分享", "7日评论", "7日作品",
	"15日点赞", "15日涨粉", "15日分享", "15日评论", "15日作品",
	"30日点赞", "30日涨粉", "30日分享", "30日评论", "30日作品",
}

// formatCount renders an optional counter, empty when absent.
func formatCount(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatScore(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// writeCSV renders ranked entries, one row per doctor.
func writeCSV(entries []ranking.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	row := make([]string, 0, len(CSVHeader))
	for _, e := range entries {
		row = row[:0]
		row = append(row,
			strconv.Itoa(e.Record.Rank),
			e.Doctor.ID,
			e.Doctor.Name,
			e.Doctor.Title,
			e.Doctor.Region,
			e.Doctor.Department,
			e.Doctor.AgencyName,
			strconv.FormatInt(e.Doctor.TotalFollowers, 10),
			strconv.FormatInt(e.Doctor.TotalLikes, 10),
			formatScore(e.Record.Composite),
			formatScore(e.CostEfficiency),
		)
		for _, v := range e.Record.SubIndices.Values() {
			row = append(row, formatScore(v))
		}
		price := ""
		if e.Doctor.Price != nil {
			price = formatScore(*e.Doctor.Price)
		}
		row = append(row,
			string(e.Record.Tier),
			formatScore(e.Record.Influence),
			formatScore(e.Record.ValueIndex),
			price,
			strconv.FormatInt(e.Doctor.TotalWorks, 10),
			formatCount(e.Doctor.AvgPlayCount),
		)
		for _, days := range model.Windows() {
			c := e.Doctor.Window(days)
			row = append(row,
				formatCount(c.Likes),
				formatCount(c.Followers),
				formatCount(c.Shares),
				formatCount(c.Comments),
				formatCount(c.Works),
			)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
