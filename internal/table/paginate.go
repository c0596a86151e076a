package table

// WindowSize сколько номеров страниц видно одновременно.
const WindowSize = 5

// Page результат пагинации. Номера страниц и элементов с единицы;
// для пустой коллекции StartItem = EndItem = 0.
type Page struct {
	Current    int   `json:"current"`
	Size       int   `json:"size"`
	Total      int   `json:"total"`
	TotalPages int   `json:"total_pages"`
	StartItem  int   `json:"start_item"`
	EndItem    int   `json:"end_item"`
	Pages      []int `json:"pages"`
	ShowFirst  bool  `json:"show_first"`
	ShowLast   bool  `json:"show_last"`
}

// Paginate считает границы страницы current при размере size.
// size <= 0 означает одну страницу на всё; current зажимается в [1, TotalPages].
func Paginate(total, size, current int) Page {
	if total < 0 {
		total = 0
	}
	if size <= 0 {
		size = max(total, 1)
	}
	pages := max((total+size-1)/size, 1)
	current = min(max(current, 1), pages)

	p := Page{Current: current, Size: size, Total: total, TotalPages: pages}
	if total > 0 {
		p.StartItem = (current-1)*size + 1
		p.EndItem = min(current*size, total)
	}

	// окно вокруг текущей страницы, прижатое к краям
	lo := max(current-WindowSize/2, 1)
	hi := min(lo+WindowSize-1, pages)
	lo = max(hi-WindowSize+1, 1)
	for n := lo; n <= hi; n++ {
		p.Pages = append(p.Pages, n)
	}
	p.ShowFirst = lo > 1
	p.ShowLast = hi < pages
	return p
}

// HasPrev есть ли предыдущая страница.
func (p Page) HasPrev() bool { return p.Current > 1 }

func (p Page) HasNext() bool { return p.Current < p.TotalPages }

// Slice индексы [lo, hi) текущей страницы в отфильтрованной коллекции.
func (p Page) Slice() (lo, hi int) {
	if p.Total == 0 {
		return 0, 0
	}
	return p.StartItem - 1, p.EndItem
}
