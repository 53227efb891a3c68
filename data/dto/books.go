package dto

import "github.com/osezele/athenaeum/data"

// CreateBookRequestBody defines the request body for CreateBook service.
// Mode-specific fields are pointers so that "absent" can be told apart from
// the zero value.
type CreateBookRequestBody struct {
	Title             string  `json:"title"`
	Author            string  `json:"author"`
	Genre             string  `json:"genre"`
	PublicationYear   int32   `json:"publication_year"`
	Isbn              string  `json:"isbn"`
	Description       string  `json:"description"`
	Location          string  `json:"location"`
	FulfillmentMode   string  `json:"fulfillment_mode"`
	TotalCopies       *int    `json:"total_copies"`
	AccessLink        *string `json:"access_link"`
	RenewalPeriodDays *int    `json:"renewal_period_days"`
}

// UpdateBookRequestBody defines the request body for UpdateBook service. The
// fields are pointer types to allow partial updates. FulfillmentMode is
// accepted only so that an attempted mode change can be rejected explicitly.
type UpdateBookRequestBody struct {
	Title             *string `json:"title"`
	Author            *string `json:"author"`
	Genre             *string `json:"genre"`
	PublicationYear   *int32  `json:"publication_year"`
	Isbn              *string `json:"isbn"`
	Description       *string `json:"description"`
	Location          *string `json:"location"`
	FulfillmentMode   *string `json:"fulfillment_mode"`
	TotalCopies       *int    `json:"total_copies"`
	AccessLink        *string `json:"access_link"`
	RenewalPeriodDays *int    `json:"renewal_period_days"`
}

// QsListBooks defines the query strings used for listing books.
type QsListBooks struct {
	Search   string
	Genre    string
	Location string
	Mode     string
	Filters  data.Filters
}
