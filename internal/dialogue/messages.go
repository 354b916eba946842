package dialogue

import (
	"fmt"
	"strings"

	"github.com/ashureev/nutribot/internal/domain"
)

// Quick replies offered on the confirmation step.
const (
	ReplyConfirm = "Всё верно"
	ReplyChange  = "Изменить"
)

const (
	msgWelcome = "Привет! Я помогу следить за питанием.\n\n" +
		"Команды:\n" +
		"/profile - заполнить профиль\n" +
		"/target - дневная норма КБЖУ\n" +
		"/day - итоги дня\n" +
		"/meals - приёмы пищи за сегодня\n" +
		"/cancel - отменить текущий диалог\n\n" +
		"Просто напишите, что вы съели, и я посчитаю КБЖУ."

	msgAskGender     = "Укажите ваш пол:"
	msgInvalidGender = "Пожалуйста, выберите пол: Мужской или Женский."
	msgAskAge        = "Сколько вам лет?"
	msgInvalidAge    = "Введите возраст целым числом от 10 до 100."
	msgAskHeight     = "Ваш рост в сантиметрах?"
	msgInvalidHeight = "Введите рост целым числом от 100 до 250 см."
	msgAskWeight     = "Ваш вес в килограммах?"
	msgInvalidWeight = "Введите вес целым числом от 30 до 300 кг."
	msgAskActivity   = "Какой у вас уровень физической активности?"
	msgInvalidActiv  = "Выберите один из вариантов: Низкий, Средний или Высокий."
	msgAskGoal       = "Опишите вашу цель (например: похудеть, набрать массу, поддерживать вес)."
	msgInvalidGoal   = "Цель должна содержать хотя бы 3 символа."

	msgConfirmQuestion = "Всё верно?"
	msgConfirmHint     = "Выберите «Всё верно» или «Изменить»."
	msgProfileSaved    = "Профиль сохранён! Теперь просто пишите, что вы съели."
	msgAskCorrection   = "Что вы хотите изменить? Цель, возраст, рост, вес, активность или пол?"
	msgProfileExists   = "Профиль уже заполнен. Ваша норма: /target"

	msgNeedProfile = "Сначала заполните профиль: /profile"
	msgTooShort    = "Опишите блюдо чуть подробнее."
	msgClarify     = "Не удалось определить калорийность. Уточните, пожалуйста, количество или размер порции (например: 200 г, 1 тарелка)."

	msgEstimatorFailed = "Не удалось получить оценку блюда. Попробуйте позже."
	msgStorageFailed   = "Извините, не удалось сохранить данные. Попробуйте ещё раз."
	msgInternalError   = "Извините, что-то пошло не так. Попробуйте ещё раз."

	msgUnknownCommand  = "Неизвестная команда. Список команд: /help"
	msgCancelled       = "Действие отменено."
	msgNothingToCancel = "Нечего отменять."

	msgNoMeals = "Сегодня ещё ничего не записано."

	remarkLogSomething = "Сегодня ещё ничего не записано. Напишите, что вы съели!"
	remarkAddMeal      = "Вы съели меньше половины нормы. Не забудьте добавить приём пищи."
	remarkEaseOff      = "Вы превысили норму больше чем на 20%. Постарайтесь сбавить обороты."
	remarkOnTrack      = "Вы в пределах нормы, так держать!"
)

func text(s string) OutboundMessage {
	return OutboundMessage{Text: s}
}

func withReplies(s string, replies ...string) OutboundMessage {
	return OutboundMessage{Text: s, QuickReplies: replies}
}

func formatTargets(p *domain.Profile, t domain.TargetResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ваш профиль: %s, %d лет, рост %d см, вес %d кг, активность: %s.\n",
		p.Gender, p.Age, p.HeightCM, p.WeightKG, p.Activity)
	fmt.Fprintf(&b, "Цель: %s\n\n", p.Goal)
	b.WriteString("Дневная норма:\n")
	fmt.Fprintf(&b, "Калории: %d ккал\n", t.Calories)
	fmt.Fprintf(&b, "Белки: %d г\n", t.Proteins)
	fmt.Fprintf(&b, "Жиры: %d г\n", t.Fats)
	fmt.Fprintf(&b, "Углеводы: %d г\n\n", t.Carbs)
	fmt.Fprintf(&b, "BMR: %d ккал, TDEE: %d ккал\n", t.BMR, t.TDEE)
	b.WriteString(t.Explanation)
	return b.String()
}

func formatMealRecorded(description string, m domain.Macros, day *domain.DailyAggregate, target domain.TargetResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Записано: %s\n", description)
	fmt.Fprintf(&b, "Калории: %d ккал\n", m.Calories)
	fmt.Fprintf(&b, "Белки: %d г\n", m.Proteins)
	fmt.Fprintf(&b, "Жиры: %d г\n", m.Fats)
	fmt.Fprintf(&b, "Углеводы: %d г", m.Carbs)

	if day == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "\n\nЗа сегодня: %d ккал, Б %d г, Ж %d г, У %d г",
		day.Calories, day.Proteins, day.Fats, day.Carbs)
	if p, ok := percentOf(day.Calories, target.Calories); ok {
		fmt.Fprintf(&b, "\nПрогресс: %d%% от нормы (%d ккал)", p, target.Calories)
	}
	return b.String()
}

func formatDailySummary(day *domain.DailyAggregate, target domain.TargetResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Итоги за %s:\n", day.Date)
	writeMacroLine(&b, "Калории", "ккал", day.Calories, target.Calories)
	writeMacroLine(&b, "Белки", "г", day.Proteins, target.Proteins)
	writeMacroLine(&b, "Жиры", "г", day.Fats, target.Fats)
	writeMacroLine(&b, "Углеводы", "г", day.Carbs, target.Carbs)
	fmt.Fprintf(&b, "Приёмов пищи: %d\n\n", day.Meals)
	b.WriteString(dailyRemark(day, target))
	return b.String()
}

func writeMacroLine(b *strings.Builder, name, unit string, got, want int) {
	if p, ok := percentOf(got, want); ok {
		fmt.Fprintf(b, "%s: %d из %d %s (%d%%)\n", name, got, want, unit, p)
		return
	}
	fmt.Fprintf(b, "%s: %d %s\n", name, got, unit)
}

func formatMeals(date string, meals []domain.Meal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Приёмы пищи за %s:", date)
	for i, m := range meals {
		fmt.Fprintf(&b, "\n%d. %s %s: %d ккал (Б %d, Ж %d, У %d)",
			i+1, m.CreatedAt.Format("15:04"), m.Description,
			m.Macros.Calories, m.Macros.Proteins, m.Macros.Fats, m.Macros.Carbs)
	}
	return b.String()
}

// dailyRemark picks the coaching line for the day.
func dailyRemark(day *domain.DailyAggregate, target domain.TargetResult) string {
	if day.Meals == 0 {
		return remarkLogSomething
	}
	if target.Calories <= 0 {
		return remarkOnTrack
	}
	progress := float64(day.Calories) / float64(target.Calories) * 100
	switch {
	case progress < 50:
		return remarkAddMeal
	case progress > 120:
		return remarkEaseOff
	default:
		return remarkOnTrack
	}
}

// percentOf returns got as a whole percentage of want; ok is false when want
// is not positive.
func percentOf(got, want int) (int, bool) {
	if want <= 0 {
		return 0, false
	}
	return got * 100 / want, true
}
