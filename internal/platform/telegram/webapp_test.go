package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractWebAppData(t *testing.T) {
	table := []struct {
		input    string
		expected string
		err      bool
	}{
		{
			input:    "https://app.stickerdom.store/#tgWebAppData=query_id%3DAAE%26user%3D%257B%2522id%2522%253A1%257D%26hash%3Dab&tgWebAppVersion=7.0",
			expected: "query_id=AAE&user=%7B%22id%22%3A1%7D&hash=ab",
		},
		{
			input:    "https://app.stickerdom.store/#tgWebAppVersion=7.0&tgWebAppData=auth_date%3D1+2",
			expected: "auth_date=1+2",
		},
		{input: "https://app.stickerdom.store/", err: true},
		{input: "https://app.stickerdom.store/#tgWebAppVersion=7.0", err: true},
		{input: "https://app.stickerdom.store/#tgWebAppData=", err: true},
		{input: "https://app.stickerdom.store/#tgWebAppData=%zz", err: true},
	}

	for _, row := range table {
		result, err := extractWebAppData(row.input)
		if row.err {
			require.Error(t, err, row.input)
			continue
		}
		require.NoError(t, err, row.input)
		require.Equal(t, row.expected, result)
	}
}
