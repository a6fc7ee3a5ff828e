package formatting

// pluralize выбирает форму слова для числа: одна, две-четыре, пять и больше
func pluralize(count int, one, few, many string) string {
	if count%10 == 1 && count%100 != 11 {
		return one
	}
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return few
	}
	return many
}

// PluralizeSlots возвращает правильное склонение слова "окно"
func PluralizeSlots(count int) string {
	return pluralize(count, "окно", "окна", "окон")
}

// PluralizeStudents возвращает правильное склонение слова "студент"
func PluralizeStudents(count int) string {
	return pluralize(count, "студент", "студента", "студентов")
}

// PluralizeSeats возвращает правильное склонение слова "место"
func PluralizeSeats(count int) string {
	return pluralize(count, "место", "места", "мест")
}

// PluralizeSessions возвращает правильное склонение слова "занятие"
func PluralizeSessions(count int) string {
	return pluralize(count, "занятие", "занятия", "занятий")
}
