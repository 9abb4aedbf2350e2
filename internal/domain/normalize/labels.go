package normalize

// Professional titles.
const (
	TitleChief          = "主任医师"
	TitleProfessor      = "教授"
	TitleAssociateChief = "副主任医师"
	TitleAssociateProf  = "副教授"
	TitleAttending      = "主治医师"
	TitleResident       = "住院医师"
)

var titleCoefficients = map[string]float64{
	TitleChief:          1.2,
	TitleProfessor:      1.2,
	TitleAssociateChief: 1.1,
	TitleAssociateProf:  1.1,
	TitleAttending:      1.05,
	TitleResident:       1.0,
}

var titleTierScores = map[string]float64{
	TitleChief:          90,
	TitleProfessor:      90,
	TitleAssociateChief: 80,
	TitleAssociateProf:  80,
	TitleAttending:      70,
	TitleResident:       60,
}

var departmentCoefficients = map[string]float64{
	"内分泌科": 1.1,
	"心内科":  1.1,
	"消化科":  1.1,
	"呼吸科":  1.05,
	"神经内科": 1.05,
	"皮肤科":  0.95,
	"妇科":   0.95,
}

// TitleCoefficient is the influence multiplier of a title, 1.0 if unknown.
func TitleCoefficient(title string) float64 {
	if c, ok := titleCoefficients[Label(title)]; ok {
		return c
	}
	return 1.0
}

// TitleTierScore is the credibility base of a title, 50 if unknown.
func TitleTierScore(title string) float64 {
	if s, ok := titleTierScores[Label(title)]; ok {
		return s
	}
	return 50
}

// DepartmentCoefficient is the credibility multiplier of a department,
// 1.0 if unknown.
func DepartmentCoefficient(dept string) float64 {
	if c, ok := departmentCoefficients[Label(dept)]; ok {
		return c
	}
	return 1.0
}
