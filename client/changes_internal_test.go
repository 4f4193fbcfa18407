package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvents(t *testing.T) {
	stream := "event: init\ndata: abc\n\n" +
		"event: ping\ndata: \n\n" +
		": comment\n" +
		"event: change\ndata: {\"id\":\"c1\"}\n\n" +
		"data: first\ndata: second\n\n"

	type pair struct{ event, data string }
	var got []pair
	err := readEvents(strings.NewReader(stream), func(event, data string) {
		got = append(got, pair{event, data})
	})
	require.NoError(t, err)
	assert.Equal(t, []pair{
		{"init", "abc"},
		{"ping", ""},
		{"change", `{"id":"c1"}`},
		{"", "first\nsecond"},
	}, got)
}
