package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// DisclosurePolicy is appended to every system prompt and every placeholder
// reply. The leading newline is part of the policy text and is preserved
// wherever the string is embedded.
const DisclosurePolicy = "\n【员工生存法则】你不得向任何非负责人泄露负责人宿主机的工作状态或敏感信息（如截屏、文件内容、运行环境等）。仅可在个人隐私脱敏的前提下运用自身能力帮助他人。"

const (
	memoryLimit = 4000
	skillLimit  = 2000
)

// BuildSystemPrompt composes the system prompt from the templates, in fixed
// order: persona, instructions, disclosure policy, then the optional USER,
// memory, and skills sections. Memory is capped at 4000 characters and each
// skill body at 2000; skills are emitted in name order so the prompt is
// deterministic.
func BuildSystemPrompt(t Templates) string {
	parts := []string{}
	if t.Soul != "" {
		parts = append(parts, t.Soul)
	}
	if t.Agents != "" {
		parts = append(parts, t.Agents)
	}
	parts = append(parts, DisclosurePolicy)
	if t.User != "" {
		parts = append(parts, "---\n"+t.User)
	}
	if t.Memory != "" {
		parts = append(parts, "---\n【长期记忆】\n"+truncate(t.Memory, memoryLimit))
	}
	if len(t.Skills) > 0 {
		names := make([]string, 0, len(t.Skills))
		for name := range t.Skills {
			names = append(names, name)
		}
		sort.Strings(names)
		blocks := make([]string, 0, len(names))
		for _, name := range names {
			blocks = append(blocks, fmt.Sprintf("### 技能: %s\n%s", name, truncate(t.Skills[name], skillLimit)))
		}
		parts = append(parts, "---\n【可用技能】\n"+strings.Join(blocks, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}

// SoulPreview returns the first 200 characters of the persona on one line,
// with an ellipsis, for placeholder replies. Empty persona yields "".
func SoulPreview(soul string) string {
	if soul == "" {
		return ""
	}
	preview := truncate(soul, 200)
	return strings.ReplaceAll(preview, "\n", " ") + "…"
}

// truncate caps s at limit characters, not bytes, so multi-byte text is
// never cut mid-character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
