// Package feedmock is an in-memory HTTP feed server for exercising fetch runs
// end to end. Feeds are stored with PUT and served with GET under /feeds/:name.
package feedmock

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type feed struct {
	body        []byte
	contentType string
}

// Server holds feeds, request counters and injected failures.
type Server struct {
	engine *gin.Engine

	mu       sync.Mutex
	feeds    map[string]feed
	hits     map[string]int
	failures map[string]int
}

// New builds the router:
//
//	PUT    /feeds/:name          store the request body
//	GET    /feeds/:name          serve it (404 when missing)
//	DELETE /feeds/:name          remove it
//	GET    /redirect/:name       302 to /feeds/:name
//	GET    /slow/:name?delay=1s  wait, then serve the feed
//	ANY    /echo                 reply with the request method, headers and body as JSON
//	GET    /status/:code         reply with the given status
func New() *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:   gin.New(),
		feeds:    map[string]feed{},
		hits:     map[string]int{},
		failures: map[string]int{},
	}
	s.engine.Use(gin.Recovery())

	g := s.engine.Group("/feeds")
	g.PUT("/:name", s.putFeed)
	g.GET("/:name", s.getFeed)
	g.DELETE("/:name", s.deleteFeed)

	s.engine.GET("/redirect/:name", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/feeds/"+c.Param("name"))
	})
	s.engine.GET("/slow/:name", s.slowFeed)
	s.engine.Any("/echo", s.echo)
	s.engine.GET("/status/:code", func(c *gin.Context) {
		code, err := strconv.Atoi(c.Param("code"))
		if err != nil || code < 100 || code > 999 {
			c.String(http.StatusBadRequest, "bad status code")
			return
		}
		c.String(code, http.StatusText(code))
	})
	return s
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.engine }

// Put stores a feed directly.
func (s *Server) Put(name string, body []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[name] = feed{body: append([]byte(nil), body...), contentType: contentType}
}

// FailNext makes the next n GETs of name answer 503.
func (s *Server) FailNext(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = n
}

// Hits returns how many GETs name received, failed ones included.
func (s *Server) Hits(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[name]
}

func (s *Server) putFeed(c *gin.Context) {
	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ct := c.ContentType()
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	s.Put(c.Param("name"), b, ct)
	c.Status(http.StatusNoContent)
}

func (s *Server) hit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[name]++
}

// lookup applies an injected failure, then finds the feed.
func (s *Server) lookup(name string) (feed, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[name] > 0 {
		s.failures[name]--
		return feed{}, http.StatusServiceUnavailable
	}
	f, ok := s.feeds[name]
	if !ok {
		return feed{}, http.StatusNotFound
	}
	return f, http.StatusOK
}

func (s *Server) getFeed(c *gin.Context) {
	s.hit(c.Param("name"))
	s.serve(c)
}

func (s *Server) serve(c *gin.Context) {
	f, code := s.lookup(c.Param("name"))
	if code != http.StatusOK {
		c.String(code, http.StatusText(code))
		return
	}
	c.Data(http.StatusOK, f.contentType, f.body)
}

func (s *Server) deleteFeed(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.feeds[c.Param("name")]
	delete(s.feeds, c.Param("name"))
	s.mu.Unlock()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) slowFeed(c *gin.Context) {
	s.hit(c.Param("name"))
	d, err := time.ParseDuration(c.DefaultQuery("delay", "1s"))
	if err != nil {
		c.String(http.StatusBadRequest, "bad delay")
		return
	}
	select {
	case <-time.After(d):
	case <-c.Request.Context().Done():
		return
	}
	s.serve(c)
}

func (s *Server) echo(c *gin.Context) {
	b, _ := io.ReadAll(c.Request.Body)
	headers := map[string]string{}
	for k, v := range c.Request.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	c.Header("X-Echo", "one")
	c.Writer.Header().Add("X-Echo", "two")
	c.JSON(http.StatusOK, gin.H{
		"method":  c.Request.Method,
		"headers": headers,
		"body":    string(b),
	})
}
