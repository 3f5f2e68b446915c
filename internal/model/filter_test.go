package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/library-management/internal/model"
)

func Test_BorrowFilter_Normalize(t *testing.T) {
	f := model.BorrowFilter{}
	f.Normalize()
	assert.Equal(t, model.DefaultPage, f.Page)
	assert.Equal(t, model.DefaultLimit, f.Limit)
	assert.Equal(t, 0, f.Offset())

	f = model.BorrowFilter{Page: 3, Limit: 1000}
	f.Normalize()
	assert.Equal(t, model.MaxLimit, f.Limit)
	assert.Equal(t, 2*model.MaxLimit, f.Offset())
}

func Test_BorrowFilter_Validate(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	zero := uint64(0)
	bogus := model.BorrowStatus("lost")
	overdue := model.StatusOverdue
	shouted := model.BorrowStatus("OVERDUE")

	tests := []struct {
		name    string
		filter  model.BorrowFilter
		wantErr bool
	}{
		{name: "empty_filter", filter: model.BorrowFilter{}},
		{name: "status_with_range", filter: model.BorrowFilter{Status: &overdue, ReturnDateAfter: &jan, ReturnDateBefore: &feb}},
		{name: "same_day_range", filter: model.BorrowFilter{ReturnDateAfter: &jan, ReturnDateBefore: &jan}},
		{name: "inverted_range", filter: model.BorrowFilter{ReturnDateAfter: &feb, ReturnDateBefore: &jan}, wantErr: true},
		{name: "unknown_status", filter: model.BorrowFilter{Status: &bogus}, wantErr: true},
		{name: "unparsed_status_case", filter: model.BorrowFilter{Status: &shouted}, wantErr: true},
		{name: "zero_book_id", filter: model.BorrowFilter{BookID: &zero}, wantErr: true},
		{name: "zero_borrower_id", filter: model.BorrowFilter{BorrowerID: &zero}, wantErr: true},
		{name: "negative_page", filter: model.BorrowFilter{Page: -1}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidFilter)
				return
			}
			assert.NoError(t, err)
		})
	}
}
