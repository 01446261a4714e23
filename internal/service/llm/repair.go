package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairJSON 从模型输出中提取并修复 JSON 对象，失败返回空串
// 策略：先走快速路径，再去除代码围栏，最后交给 jsonrepair
func RepairJSON(input string) string {
	s := strings.TrimSpace(input)

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && json.Valid([]byte(s)) {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	i := strings.IndexByte(s, '{')
	if i < 0 {
		return ""
	}
	if j := strings.LastIndexByte(s, '}'); j > i {
		sub := s[i : j+1]
		if json.Valid([]byte(sub)) {
			return sub
		}
		s = sub
	} else {
		// 截断的输出，交给 jsonrepair 补全
		s = s[i:]
	}

	out, err := jsonrepair.JSONRepair(s)
	if err != nil || !json.Valid([]byte(out)) {
		return ""
	}
	return out
}
