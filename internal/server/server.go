// Package server exposes the tracking session and the stop list over HTTP.
package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bus-tracker/internal/stops"
	"bus-tracker/internal/tracking"
	"bus-tracker/internal/transit"
)

// Session is the subset of *tracking.Controller the handlers drive.
type Session interface {
	View() tracking.ViewModel
	RequestLocation()
	StopTracking()
	DismissLocationNotice()
	ManualRefresh()
	Retry()
	SelectBus(i int) error
}

type Deps struct {
	Session Session
	Stops   stops.Directory
}

type Server struct {
	session Session
	stops   stops.Directory
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(deps Deps) *Server {
	return &Server{session: deps.Session, stops: deps.Stops}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	if s.session != nil {
		api := r.Group("/api")
		api.GET("/view", s.view)
		api.POST("/refresh", s.action(s.session.ManualRefresh))
		api.POST("/retry", s.action(s.session.Retry))
		api.POST("/location/request", s.action(s.session.RequestLocation))
		api.POST("/location/stop", s.action(s.session.StopTracking))
		api.POST("/location/dismiss", s.action(s.session.DismissLocationNotice))
		api.POST("/buses/:index/select", s.selectBus)
	}
	if s.stops != nil {
		r.GET("/api/stops", s.listStops)
		r.GET("/api/stops/:key", s.getStop)
	}
	return r
}

func logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

func (s *Server) view(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.View())
}

// action runs fn and answers with the view as it is right after; work fn
// starts in the background shows up on later polls.
func (s *Server) action(fn func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn()
		c.JSON(http.StatusOK, s.session.View())
	}
}

func (s *Server) selectBus(c *gin.Context) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := s.session.SelectBus(i); err != nil {
		if errors.Is(err, tracking.ErrBusIndex) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, s.session.View())
}

const defaultNearbyLimit = 10

func (s *Server) listStops(c *gin.Context) {
	all, err := s.stops.List(c.Request.Context())
	if err != nil {
		log.Printf("list stops: %v", err)
		writeError(c, http.StatusBadGateway, transit.ErrNetwork.Message())
		return
	}
	filtered := stops.Filter(all, c.Query("q"))

	latS, lngS := c.Query("lat"), c.Query("lng")
	if latS == "" && lngS == "" {
		c.JSON(http.StatusOK, filtered)
		return
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lng, err2 := strconv.ParseFloat(lngS, 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		writeError(c, http.StatusBadRequest, "lat and lng must be valid coordinates")
		return
	}
	limit := defaultNearbyLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, stops.Nearest(filtered, transit.GeoPoint{Lat: lat, Lng: lng}, limit))
}

func (s *Server) getStop(c *gin.Context) {
	st, err := s.stops.Lookup(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, stops.ErrNotFound) {
			writeError(c, http.StatusNotFound, "stop not found")
			return
		}
		log.Printf("lookup stop %s: %v", c.Param("key"), err)
		writeError(c, http.StatusBadGateway, transit.ErrNetwork.Message())
		return
	}
	c.JSON(http.StatusOK, st)
}
