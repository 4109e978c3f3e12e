package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the routes. gatherer may be nil, in which case /metrics is
// not served.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	players := r.Group("/players/:player_id")
	players.GET("/balance", h.GetBalance)
	players.POST("/deposits", h.Deposit)
	players.POST("/bonuses", h.GrantBonus)
	players.POST("/free-spins", h.GrantFreeSpins)
	players.POST("/bets", h.Bet)
	players.POST("/wins", h.Win)
	players.POST("/withdrawals", h.Withdraw)

	r.GET("/stats/bets", h.GetBetStats)
	r.GET("/stats/liability", h.GetLiability)

	admin := r.Group("/admin")
	admin.GET("/settings", h.GetSettings)
	admin.PUT("/settings", h.UpdateSettings)

	return r
}
