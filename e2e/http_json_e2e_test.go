package http_e2e_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	helloadd "github.com/xizhibei/go-hello-add"
	"github.com/xizhibei/go-hello-add/admin"
	"github.com/xizhibei/go-hello-add/calc"
	"github.com/xizhibei/go-hello-add/httpjson"
	"go.uber.org/zap"
)

type HTTPJsonTestSuite struct {
	suite.Suite
	service *httpjson.Server
	admin   *admin.Server
	client  *httpjson.Client
}

func TestHTTPJsonTestSuite(t *testing.T) {
	suite.Run(t, new(HTTPJsonTestSuite))
}

func (suite *HTTPJsonTestSuite) SetupSuite() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)

	suite.service = httpjson.NewServer(
		httpjson.ServerOptions{Addr: "127.0.0.1:0"},
		validator.New(),
		helloadd.WithServerName("e2e"),
		helloadd.WithLogResponse(true),
		helloadd.WithErrorClasses(calc.Errors...),
	)
	calc.Register(suite.service, 0)

	metrics := admin.NewMetrics()
	metrics.Attach(suite.service)
	suite.admin = admin.NewServer("127.0.0.1:0", metrics, suite.service)

	require.NoError(suite.T(), suite.service.Start())
	require.NoError(suite.T(), suite.admin.Start())

	suite.client = httpjson.NewClient("http://"+suite.service.Addr().String(), &http.Client{Timeout: 5 * time.Second})
}

func (suite *HTTPJsonTestSuite) TearDownSuite() {
	ctx := context.Background()
	suite.NoError(suite.service.Stop(ctx))
	suite.NoError(suite.admin.Stop(ctx))
}

func (suite *HTTPJsonTestSuite) TestHome() {
	var res calc.HomeResponse
	err := suite.client.Call(context.Background(), calc.HomeRoute, nil, &res)
	require.Nil(suite.T(), err)

	suite.Equal("Hello, Flask!", res.Message)
}

func (suite *HTTPJsonTestSuite) TestAdd() {
	a, b := calc.Int(3), calc.Int(4)

	var res calc.AddResponse
	err := suite.client.Call(context.Background(), calc.AddRoute, calc.AddRequest{A: &a, B: &b}, &res)
	require.Nil(suite.T(), err)

	suite.False(res.Result.IsFloat())
	suite.Equal("7", res.Result.String())
}

func (suite *HTTPJsonTestSuite) TestAddFloat() {
	a, b := calc.Float(2.5), calc.Int(1)

	var res calc.AddResponse
	err := suite.client.Call(context.Background(), calc.AddRoute, calc.AddRequest{A: &a, B: &b}, &res)
	require.Nil(suite.T(), err)

	suite.True(res.Result.IsFloat())
	suite.Equal("3.5", res.Result.String())
}

func (suite *HTTPJsonTestSuite) TestAddDefaults() {
	var res calc.AddResponse
	err := suite.client.Call(context.Background(), calc.AddRoute, map[string]interface{}{}, &res)
	require.Nil(suite.T(), err)

	suite.Equal("0", res.Result.String())
}

func (suite *HTTPJsonTestSuite) TestAddInvalid() {
	err := suite.client.Call(context.Background(), calc.AddRoute, []int{1, 2}, nil)

	var statusErr *httpjson.StatusError
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusBadRequest, statusErr.Status)
}

func (suite *HTTPJsonTestSuite) TestRepeatedCallsAreStable() {
	a, b := calc.Int(20), calc.Float(22)

	var wg sync.WaitGroup
	results := make([]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var res calc.AddResponse
			if err := suite.client.Call(context.Background(), calc.AddRoute, calc.AddRequest{A: &a, B: &b}, &res); err != nil {
				results[i] = err.Error()
				return
			}
			results[i] = res.Result.String()
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		suite.Equal("42.0", r)
	}
}

func (suite *HTTPJsonTestSuite) TestUnmatchedRoutes() {
	err := suite.client.Call(context.Background(), helloadd.Get("/nope"), nil, nil)

	var statusErr *httpjson.StatusError
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusNotFound, statusErr.Status)

	err = suite.client.Call(context.Background(), helloadd.Get("/add"), nil, nil)
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusMethodNotAllowed, statusErr.Status)
}

func (suite *HTTPJsonTestSuite) TestTimeoutCall() {
	route := helloadd.Get("/e2e/slow")
	suite.service.Register(route, &helloadd.Handler{
		Method: func(c helloadd.Context) {
			time.Sleep(100 * time.Millisecond)
			c.ReplyOK("late")
		},
		Timeout: 50 * time.Millisecond,
	})

	err := suite.client.Call(context.Background(), route, nil, nil)

	var statusErr *httpjson.StatusError
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusRequestTimeout, statusErr.Status)
	suite.Equal("[HELLO-ADD] timeout", statusErr.Message)
}

func (suite *HTTPJsonTestSuite) TestPanicCall() {
	route := helloadd.Get("/e2e/panic")
	suite.service.Register(route, &helloadd.Handler{
		Method: func(c helloadd.Context) {
			panic("panic")
		},
		Timeout: 5 * time.Second,
	})

	err := suite.client.Call(context.Background(), route, nil, nil)

	var statusErr *httpjson.StatusError
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusInternalServerError, statusErr.Status)
}

func (suite *HTTPJsonTestSuite) TestAdminEndpoints() {
	suite.Require().NoError(suite.client.Call(context.Background(), calc.HomeRoute, nil, nil))

	base := fmt.Sprintf("http://%s", suite.admin.Addr())

	res, err := http.Get(base + admin.HealthPath)
	suite.Require().NoError(err)
	res.Body.Close()
	suite.Equal(http.StatusOK, res.StatusCode)

	res, err = http.Get(base + admin.MetricsPath)
	suite.Require().NoError(err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	suite.Require().NoError(err)
	suite.Contains(string(body), `hello_add_response_time_seconds_count{method="GET",name="e2e",path="/",status="200"}`)
}
