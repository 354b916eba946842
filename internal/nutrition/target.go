package nutrition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/nutribot/internal/domain"
)

// DefaultActivityMultiplier applies to medium and to any unrecognised activity.
const DefaultActivityMultiplier = 1.55

// activityMultipliers is keyed by the lower-cased activity label.
var activityMultipliers = map[string]float64{
	"низкий":  1.2,
	"средний": 1.55,
	"высокий": 1.725,
}

type goalRule struct {
	keywords []string
	apply    func(t *targetDraft)
	note     string
}

type targetDraft struct {
	tdee     float64
	weight   float64
	calories int
	proteins int
	fats     int
}

// goalRules are evaluated in order; the first rule with a matching keyword wins.
var goalRules = []goalRule{
	{
		keywords: []string{"похудение", "похудеть", "сбросить вес"},
		apply: func(t *targetDraft) {
			t.calories = int(t.tdee * 0.85)
			t.proteins = int(t.weight * 1.6)
			t.fats = int(t.weight * 0.8)
		},
		note: "Цель — похудение: калорийность снижена на 15%, белок повышен до 1.6 г/кг, жиры снижены до 0.8 г/кг",
	},
	{
		keywords: []string{"набор массы", "набрать вес", "нарастить мышцы"},
		apply: func(t *targetDraft) {
			t.calories = int(t.tdee * 1.15)
			t.proteins = int(t.weight * 1.6)
			t.fats = int(t.weight * 1)
		},
		note: "Цель — набор массы: калорийность увеличена на 15%, белок 1.6 г/кг, жиры 1 г/кг",
	},
	{
		keywords: []string{"белок", "протеин"},
		apply: func(t *targetDraft) {
			t.proteins = int(t.weight * 2)
			t.fats = int(t.weight * 1)
		},
		note: "Цель — повысить белок: белок 2 г/кг, жиры 1 г/кг, калории по TDEE",
	},
	{
		keywords: []string{"холестерин", "жиры"},
		apply: func(t *targetDraft) {
			t.fats = int(t.weight * 0.7)
		},
		note: "Цель — снизить жиры/холестерин: жиры 0.7 г/кг, калории по TDEE",
	},
	{
		keywords: []string{"поддержание", "поддерживать вес"},
		apply:    func(*targetDraft) {},
		note:     "Цель — поддержание: калории по TDEE, белок 1.2 г/кг, жиры 1 г/кг",
	},
}

const defaultGoalNote = "Стандартные значения: калории по TDEE, белок 1.2 г/кг, жиры 1 г/кг"

// BMR returns the Mifflin-St Jeor basal metabolic rate, truncated.
func BMR(p *domain.Profile) int {
	bmr := 10*float64(p.WeightKG) + 6.25*float64(p.HeightCM) - 5*float64(p.Age)
	if p.IsMale() {
		bmr += 5
	} else {
		bmr -= 161
	}
	return int(bmr)
}

// ActivityMultiplier returns the TDEE factor for an activity label.
func ActivityMultiplier(activity domain.Activity) float64 {
	if m, ok := activityMultipliers[strings.ToLower(string(activity))]; ok {
		return m
	}
	return DefaultActivityMultiplier
}

// CalculateTargets derives daily targets from a complete profile. A nil
// profile yields a zero result; callers check profile existence first.
func CalculateTargets(p *domain.Profile) domain.TargetResult {
	if p == nil {
		return domain.TargetResult{Explanation: "Нет профиля"}
	}
	bmr := BMR(p)
	if bmr == 0 {
		return domain.TargetResult{Explanation: "Нет профиля"}
	}

	activity := strings.ToLower(string(p.Activity))
	mult := ActivityMultiplier(p.Activity)
	tdee := float64(bmr) * mult

	notes := []string{
		fmt.Sprintf("TDEE рассчитан с коэффициентом активности '%s': %s", activity, strconv.FormatFloat(mult, 'g', -1, 64)),
	}

	weight := float64(p.WeightKG)
	draft := targetDraft{
		tdee:     tdee,
		weight:   weight,
		calories: int(tdee),
		proteins: int(weight * 1.2),
		fats:     int(weight * 1),
	}

	goal := strings.ToLower(p.Goal)
	goalNote := defaultGoalNote
	for _, rule := range goalRules {
		if containsAny(goal, rule.keywords) {
			rule.apply(&draft)
			goalNote = rule.note
			break
		}
	}
	notes = append(notes, goalNote)

	return domain.TargetResult{
		Macros: domain.Macros{
			Calories: draft.calories,
			Proteins: draft.proteins,
			Fats:     draft.fats,
			Carbs:    CarbsFor(draft.calories, draft.proteins, draft.fats),
		},
		BMR:         bmr,
		TDEE:        int(tdee),
		Explanation: strings.Join(notes, "; "),
	}
}

// CarbsFor fills the remaining calories with carbohydrates. The result is
// not clamped and may be negative.
func CarbsFor(calories, proteins, fats int) int {
	return (calories - proteins*4 - fats*9) / 4
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
