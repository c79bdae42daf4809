package service

// Параметры пагинации списков.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// validatePage проверяет номер и размер страницы и возвращает смещение.
func validatePage(page, pageSize int) (offset int, err error) {
	if page < 1 {
		return 0, validationError("page должен быть >= 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return 0, validationError("page_size должен быть в диапазоне 1..%d", MaxPageSize)
	}
	return (page - 1) * pageSize, nil
}
