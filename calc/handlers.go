// Package calc implements the greeting and addition endpoints.
package calc

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	helloadd "github.com/xizhibei/go-hello-add"
)

// HomeMessage is the greeting returned by GET /. Clients depend on the exact text.
const HomeMessage = "Hello, Flask!"

var (
	HomeRoute = helloadd.Get("/")
	AddRoute  = helloadd.Post("/add")
)

// Registrar is implemented by helloadd.Server and every transport embedding it.
type Registrar interface {
	Register(route helloadd.Route, hdl *helloadd.Handler)
}

// Register installs both handlers. A zero timeout uses the server default.
func Register(r Registrar, timeout time.Duration) {
	r.Register(HomeRoute, &helloadd.Handler{
		Method:  Home,
		Timeout: timeout,
	})
	r.Register(AddRoute, &helloadd.Handler{
		Method:  Add,
		Timeout: timeout,
	})
}

// Home replies with the fixed greeting.
func Home(c helloadd.Context) {
	c.ReplyOK(HomeResponse{Message: HomeMessage})
}

// Add replies with the sum of the optional operands a and b.
func Add(c helloadd.Context) {
	var req AddRequest
	if err := c.Bind(&req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, helloadd.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.ReplyError(status, errors.Wrap(err, "invalid request"))
		return
	}

	a, b := req.Operands()
	sum := a.Add(b)
	if !sum.IsFinite() {
		c.ReplyError(http.StatusBadRequest, errors.Wrapf(ErrNotFinite, "%s + %s", a, b))
		return
	}

	c.ReplyOK(AddResponse{Result: sum})
}
