package models

// PaginatedEmails is one page of a folder listing.
type PaginatedEmails struct {
	Emails      []*StoredEmail `json:"emails"`
	Page        int            `json:"page"`
	PageSize    int            `json:"pageSize"`
	TotalPages  int            `json:"totalPages"`
	TotalEmails int            `json:"totalEmails"`
	HasNext     bool           `json:"hasNext"`
	HasPrev     bool           `json:"hasPrev"`
}

// Paginate slices all into the requested page. Pages are 1-based.
func Paginate(all []*StoredEmail, page, pageSize int) *PaginatedEmails {
	if pageSize < 1 {
		pageSize = 50
	}
	if page < 1 {
		page = 1
	}
	total := len(all)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &PaginatedEmails{
		Emails:      all[start:end],
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		TotalEmails: total,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}
