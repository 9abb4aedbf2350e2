package importer

import "strings"

// Template documents the CSV import format.
type Template struct {
	Headers      []string          `json:"csv_headers"`
	Descriptions map[string]string `json:"field_descriptions"`
	Rules        map[string]string `json:"validation_rules"`
	Aliases      map[string]string `json:"aliases"`
	Sample       []string          `json:"sample_data"`
}

var sampleRows = [][]string{
	{"DOC001", "张医生", "主任医师", "北京", "心血管内科", "北京医院", "50000", "1200000", "860000", "320", "45000",
		"5200", "800", "150", "300", "4", "9800", "1500", "280", "560", "8", "18500", "2600", "520", "1100", "15",
		"85.5", "80", "78.2", "90.1"},
	{"DOC002", "李医生", "副主任医师", "上海", "皮肤科", "上海医院", "45000", "380000", "210000", "180", "18000",
		"2100", "300", "60", "120", "3", "4000", "650", "110", "230", "6", "7600", "1100", "210", "420", "11",
		"82", "76", "75.5", "88.3"},
}

// Template returns the import template: every column in canonical order
// with its description, validation rule, accepted aliases and sample rows.
func (i *Importer) Template() Template {
	t := Template{
		Headers:      make([]string, 0, len(i.cols)),
		Descriptions: make(map[string]string, len(i.cols)),
		Rules:        make(map[string]string, len(i.cols)),
		Aliases:      map[string]string{},
	}
	for _, c := range i.cols {
		t.Headers = append(t.Headers, c.key)
		t.Descriptions[c.key] = c.description
		t.Rules[c.key] = c.rule()
		for _, a := range c.aliases {
			t.Aliases[a] = c.key
		}
	}
	for _, row := range sampleRows {
		t.Sample = append(t.Sample, strings.Join(row, ","))
	}
	return t
}
