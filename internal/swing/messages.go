package swing

// Locale selects the language of assessments and recommendations.
type Locale string

const (
	LocaleZH Locale = "zh"
	LocaleEN Locale = "en"
)

type messages struct {
	delay  [3]string
	energy [3]string
	rom    [3]string

	waistToShoulder string
	shoulderToWrist string
	energyLow       string
	waistROM        string
	shoulderROM     string
	wristROM        string
	keepItUp        string
}

var messageTables = map[Locale]messages{
	LocaleZH: {
		delay:           [3]string{"优秀 - 发力时序协调良好", "良好 - 发力时序基本协调", "需要改进 - 发力时序不够协调"},
		energy:          [3]string{"优秀 - 能量传递效率高", "良好 - 能量传递效率中等", "需要改进 - 能量传递效率较低"},
		rom:             [3]string{"优秀 - 关节活动度充分", "良好 - 关节活动度基本充分", "需要改进 - 关节活动度不足"},
		waistToShoulder: "建议加快腰部到肩部的发力转换速度",
		shoulderToWrist: "建议加快肩部到腕部的发力转换速度",
		energyLow:       "建议提高能量传递效率，注意动作连贯性",
		waistROM:        "建议增加腰部旋转幅度",
		shoulderROM:     "建议增加肩部屈伸幅度",
		wristROM:        "建议增加腕部背屈幅度",
		keepItUp:        "动作表现良好，继续保持！",
	},
	LocaleEN: {
		delay:           [3]string{"excellent - well coordinated timing", "good - mostly coordinated timing", "needs improvement - timing is not coordinated"},
		energy:          [3]string{"excellent - efficient energy transfer", "good - moderate energy transfer", "needs improvement - weak energy transfer"},
		rom:             [3]string{"excellent - full range of motion", "good - adequate range of motion", "needs improvement - limited range of motion"},
		waistToShoulder: "Speed up the transfer from waist to shoulder",
		shoulderToWrist: "Speed up the transfer from shoulder to wrist",
		energyLow:       "Improve energy transfer by keeping the motion continuous",
		waistROM:        "Increase waist rotation",
		shoulderROM:     "Increase shoulder flexion",
		wristROM:        "Increase wrist extension",
		keepItUp:        "Good swing, keep it up!",
	},
}

func messagesFor(l Locale) messages {
	if m, ok := messageTables[l]; ok {
		return m
	}
	return messageTables[LocaleZH]
}
