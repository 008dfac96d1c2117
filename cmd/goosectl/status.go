package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slonegd/gogoose"
	"github.com/slonegd/gogoose/metrics"
)

type frameStatus struct {
	Name      string         `json:"name"`
	GoCBRef   string         `json:"gocb_ref"`
	AppID     uint16         `json:"app_id"`
	StNum     uint32         `json:"st_num"`
	SqNum     uint32         `json:"sq_num"`
	Validity  string         `json:"validity"`
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`
}

func frameStatuses(e *gogoose.Engine) []frameStatus {
	names := e.Names()
	out := make([]frameStatus, 0, len(names))
	for _, name := range names {
		frame, err := e.Frame(name)
		if err != nil {
			continue
		}
		h := frame.Header()
		st := frameStatus{
			Name:      name,
			GoCBRef:   h.GoCBRef,
			AppID:     h.AppID,
			StNum:     h.StNum,
			SqNum:     h.SqNum,
			Validity:  frame.Validity().String(),
			Timestamp: h.Timestamp,
			Values:    make(map[string]any),
		}
		for _, key := range frame.Keys() {
			if v, err := frame.GetValueByKey(key); err == nil {
				st.Values[key] = v
			}
		}
		out = append(out, st)
	}
	return out
}

func newStatusRouter(e *gogoose.Engine) *gin.Engine {
	metrics.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/frames", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"frames": frameStatuses(e)})
	})
	r.GET("/frames/:name", func(c *gin.Context) {
		name := c.Param("name")
		for _, st := range frameStatuses(e) {
			if st.Name == name {
				c.JSON(http.StatusOK, st)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown control block " + name})
	})
	return r
}

// serveStatus работает до отмены ctx
func serveStatus(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
