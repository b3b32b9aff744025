package meetup

import (
	"time"

	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
)

// validateMeetingTime проверяет, что время встречи в будущем и не дальше
// горизонта планирования.
func validateMeetingTime(meetingAt, now time.Time) error {
	if meetingAt.IsZero() {
		return settlement.Invalid("Не указано время встречи")
	}
	if !meetingAt.After(now) {
		return settlement.Invalid("Время встречи должно быть в будущем")
	}
	if meetingAt.After(now.Add(models.MeetupMaxAhead)) {
		return settlement.Invalid("Время встречи слишком далеко в будущем")
	}
	return nil
}

// validateTerms проверяет согласованность условий сделки: либо договорная
// цена, либо обмен, и только если слепок объявления это разрешает.
func validateTerms(negotiatedPrice *int64, isTrade bool, tradeDescription *string, priceNegotiable, tradeAllowed bool) error {
	if negotiatedPrice != nil && isTrade {
		return settlement.Invalid("Нельзя одновременно указать договорную цену и обмен")
	}
	if negotiatedPrice != nil {
		if !priceNegotiable {
			return settlement.Invalid("Цена этого объявления не обсуждается")
		}
		if *negotiatedPrice < 0 {
			return settlement.Invalid("Договорная цена не может быть отрицательной")
		}
	}
	if isTrade {
		if !tradeAllowed {
			return settlement.Invalid("Обмен по этому объявлению не предусмотрен")
		}
		if tradeDescription == nil || *tradeDescription == "" {
			return settlement.Invalid("Не указано, что предлагается в обмен")
		}
	}
	return nil
}
