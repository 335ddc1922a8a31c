package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"storefront-agent/internal/domain"
)

// FallbackConfidence is the fixed confidence of keyword-inferred decisions.
const FallbackConfidence = 0.6

// requiredDecisionFields must be present in every reasoning-service reply.
var requiredDecisionFields = []string{"analysis", "action", "confidence", "humanMessage"}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractObject returns the outermost {...} span of s.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

type actionFamily struct {
	name  string
	re    *regexp.Regexp
	verbs []string
}

// actionFamilies are scanned in order; the first family with a matching tool wins.
var actionFamilies = []actionFamily{
	{"list", regexp.MustCompile(`(?i)\b(list|show|display|view|browse|find|get)\b`), []string{"list", "show", "get", "find", "search"}},
	{"create", regexp.MustCompile(`(?i)\b(create|add|new|insert|make)\b`), []string{"create", "add", "new", "insert"}},
	{"update", regexp.MustCompile(`(?i)\b(update|modify|edit|change|set)\b`), []string{"update", "modify", "edit", "set"}},
	{"delete", regexp.MustCompile(`(?i)\b(delete|remove|cancel|archive|refund)\b`), []string{"delete", "remove", "cancel", "archive", "refund"}},
	{"sync", regexp.MustCompile(`(?i)\b(sync|synchroni[sz]e|provision|import|export)\b`), []string{"sync", "provision", "import", "export"}},
	{"analyze", regexp.MustCompile(`(?i)\b(analy[sz]e|analysis|check|review|inspect|report)\b`), []string{"analyze", "analyse", "check", "review", "report"}},
	{"status", regexp.MustCompile(`(?i)\b(status|monitor|health|uptime)\b`), []string{"status", "monitor", "health"}},
}

var wordRe = regexp.MustCompile(`[a-z]{4,}`)

// jsonKeyRe matches object keys so field names like "analysis" are not read as intent.
var jsonKeyRe = regexp.MustCompile(`"[A-Za-z_]+"\s*:`)

// ResponseValidator turns raw reasoning-service output into a Decision.
type ResponseValidator struct {
	tools domain.ToolExecutor
}

// NewResponseValidator creates a validator bound to one agent's tools.
func NewResponseValidator(tools domain.ToolExecutor) *ResponseValidator {
	return &ResponseValidator{tools: tools}
}

// Validate parses raw strictly and degrades to the keyword fallback on any
// failure. It never fails; fallback decisions carry Fallback and ParseError.
func (v *ResponseValidator) Validate(raw, request string) domain.Decision {
	d, err := v.ParseStrict(raw)
	if err == nil {
		return d
	}
	return v.Fallback(raw, request, err)
}

// ParseStrict parses and validates raw. Failures wrap domain.ErrValidation,
// or domain.ErrUnknownAction when the action is not a registered tool.
func (v *ResponseValidator) ParseStrict(raw string) (domain.Decision, error) {
	const op = "Validator.Parse"

	obj, ok := extractObject(stripCodeFences(raw))
	if !ok {
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, "no JSON object in response")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(obj)
		if repairErr != nil {
			return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, err.Error())
		}
		fields = nil
		if err2 := json.Unmarshal([]byte(repaired), &fields); err2 != nil || fields == nil {
			return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, err.Error())
		}
	}

	for _, f := range requiredDecisionFields {
		if _, ok := fields[f]; !ok {
			return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, "missing field "+f)
		}
	}

	var d domain.Decision
	var err error
	if d.Analysis, err = stringField(fields, "analysis"); err != nil {
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, err.Error())
	}
	if d.HumanMessage, err = stringField(fields, "humanMessage"); err != nil {
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, err.Error())
	}
	if d.Action, err = stringField(fields, "action"); err != nil {
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, err.Error())
	}
	if r, ok := fields["reasoning"].(string); ok {
		d.Reasoning = r
	}

	conf, ok := fields["confidence"].(float64)
	if !ok {
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, "confidence is not a number")
	}
	if conf < 0 || conf > 1 {
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, fmt.Sprintf("confidence %g out of range [0,1]", conf))
	}
	d.Confidence = conf

	switch p := fields["parameters"].(type) {
	case nil:
		d.Parameters = map[string]any{}
	case map[string]any:
		d.Parameters = p
	default:
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrValidation, "parameters is not an object")
	}

	if _, err := v.tools.Get(d.Action); err != nil {
		return domain.Decision{}, domain.NewDomainError(op, domain.ErrUnknownAction, d.Action)
	}
	return d, nil
}

func stringField(fields map[string]any, name string) (string, error) {
	s, ok := fields[name].(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string", name)
	}
	if name == "action" && strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("field %s is empty", name)
	}
	return strings.TrimSpace(s), nil
}

// Fallback infers an action from keyword families in raw, then in request.
// The mapping is best effort: the result always names a registered tool when
// any is registered, not necessarily the one a human would pick.
func (v *ResponseValidator) Fallback(raw, request string, parseErr error) domain.Decision {
	names := v.tools.Names()
	d := domain.Decision{
		Analysis:   "The reasoning service reply could not be parsed; the action was inferred from keywords.",
		Parameters: map[string]any{},
		Confidence: FallbackConfidence,
		Fallback:   true,
	}
	if parseErr != nil {
		d.ParseError = parseErr.Error()
	}
	if len(names) == 0 {
		d.Reasoning = "no tools registered"
		d.HumanMessage = "I couldn't work out how to handle that request."
		return d
	}

	hints := wordRe.FindAllString(strings.ToLower(request), -1)
	for _, source := range []string{jsonKeyRe.ReplaceAllString(raw, " "), request} {
		for _, fam := range actionFamilies {
			if !fam.re.MatchString(source) {
				continue
			}
			if tool := nearestTool(names, fam.verbs, hints); tool != "" {
				d.Action = tool
				d.Reasoning = "fallback keyword match: " + fam.name
				d.HumanMessage = fmt.Sprintf("I'll handle this with %s.", tool)
				return d
			}
		}
	}

	d.Action = names[0]
	d.Reasoning = "fallback default: first registered tool"
	d.HumanMessage = fmt.Sprintf("I'll handle this with %s.", names[0])
	return d
}

// nearestTool picks the tool whose name contains one of verbs, preferring
// names that also share a word with the request. Ties keep registration order.
func nearestTool(names, verbs, hints []string) string {
	best, bestScore := "", 0
	for _, name := range names {
		lower := strings.ToLower(name)
		score := 0
		for _, verb := range verbs {
			if strings.Contains(lower, verb) {
				score = 2
				break
			}
		}
		if score == 0 {
			continue
		}
		for _, h := range hints {
			if strings.Contains(lower, strings.TrimSuffix(h, "s")) {
				score++
				break
			}
		}
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best
}
