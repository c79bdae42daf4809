package model

// Interpretation — задача, извлечённая из сообщения чата.
type Interpretation struct {
	Title       string
	Description *string
}

// SafetyResult — результат проверки сообщения модерацией.
type SafetyResult struct {
	Flagged bool
	// Reason — причина отклонения (если Flagged)
	Reason string
}
