package calendar

// Page описывает одну страницу элементов.
type Page[T any] struct {
	Items    []T // элементы на текущей странице
	Page     int // номер страницы (с 1)
	PageSize int // количество элементов на странице
	HasNext  bool
	HasPrev  bool
	Total    int // общее количество элементов
}

// NormalizePage приводит номер страницы и размер к допустимым значениям.
func NormalizePage(page, pageSize, defaultSize, maxSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if maxSize > 0 && pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// PageOf собирает метаданные страницы из уже отфильтрованного среза и
// общего количества (total считает хранилище).
func PageOf[T any](items []T, page, pageSize int, total int64) Page[T] {
	page, pageSize = NormalizePage(page, pageSize, 20, 100)
	end := page * pageSize
	return Page[T]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		HasPrev:  page > 1,
		HasNext:  int64(end) < total,
		Total:    int(total),
	}
}
