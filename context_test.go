package helloadd_test

import (
	"net/http"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	helloadd "github.com/xizhibei/go-hello-add"
)

func TestRoutePattern(t *testing.T) {
	cases := []struct {
		route helloadd.Route
		str   string
		want  string
	}{
		{helloadd.Get("/"), "GET /", "GET /{$}"},
		{helloadd.Post("/add"), "POST /add", "POST /add"},
		{helloadd.Get("/dir/"), "GET /dir/", "GET /dir/{$}"},
		{helloadd.Route{Method: http.MethodGet}, "GET ", "GET /{$}"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.str, tc.route.String())
		assert.Equal(t, tc.want, tc.route.Pattern())
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "42", (&helloadd.ID{Num: 42}).String())
	assert.Equal(t, "abc", (&helloadd.ID{Num: 42, Str: "abc"}).String())
}

func TestBaseContextReplyOnce(t *testing.T) {
	var sent []*helloadd.Response
	c := &helloadd.BaseContext{
		BaseReply: func(res *helloadd.Response) {
			sent = append(sent, res)
		},
	}

	assert.False(t, c.Replied())
	assert.Nil(t, c.GetResponse())

	assert.True(t, c.ReplyOK(map[string]int{"result": 1}))
	assert.False(t, c.ReplyError(http.StatusInternalServerError, errors.New("late")))
	assert.False(t, c.Reply(&helloadd.Response{Status: http.StatusTeapot}))

	assert.True(t, c.Replied())
	assert.Len(t, sent, 1)
	assert.Equal(t, http.StatusOK, c.GetResponse().Status)
	assert.Equal(t, map[string]int{"result": 1}, c.GetResponse().Result)
}

func TestBaseContextConcurrentReply(t *testing.T) {
	var mu sync.Mutex
	count := 0
	c := &helloadd.BaseContext{
		BaseReply: func(res *helloadd.Response) {
			mu.Lock()
			count++
			mu.Unlock()
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.ReplyOK(i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, count)
}

func TestBaseContextNoBaseReply(t *testing.T) {
	c := &helloadd.BaseContext{}

	assert.True(t, c.ReplyError(http.StatusBadRequest, errors.New("bad")))
	assert.Equal(t, http.StatusBadRequest, c.GetResponse().Status)
}
