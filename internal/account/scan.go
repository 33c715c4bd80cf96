package account

import (
	"context"
	"io"
	"net/http"

	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxScanBytes = 4 << 10

// Scan 接收扫码得到的原始文本。无法识别的内容返回 accepted=false，客户端继续扫描。
// 识别成功时积分、到店记录和等级在一次提交中更新，同一用户的并发扫描按顺序执行。
func (h *Handler) Scan(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxScanBytes))
	if err != nil {
		c.JSON(http.StatusOK, ScanResponse{Accepted: false})
		return
	}
	payload, ok := loyalty.ParsePayload(string(raw))
	if !ok {
		c.JSON(http.StatusOK, ScanResponse{Accepted: false})
		return
	}

	id := user.CurrentUserID(c)
	today := h.now().In(h.loc)
	var (
		awarded int
		visit   loyalty.Visit
	)
	res := h.sessions.Commit(c.Request.Context(), id,
		func(st *session.State) error {
			st.User.Account, awarded = h.tiers.Award(st.User.Account, payload, today)
			visit = st.User.Visits[0]
			return nil
		},
		func(ctx context.Context, st *session.State) error {
			return h.users.RecordScan(ctx, id, user.Scan{
				Payload: payload,
				Visit:   visit,
				Account: st.User.Account,
			})
		},
	)
	if !res.OK() {
		h.respondCommitError(c, res.Err, "Impossible d'enregistrer vos points, veuillez réessayer")
		return
	}

	logging.L().Info("小票积分已入账",
		zap.String("user", id), zap.String("code", payload.Code), zap.Int("points", awarded))
	standing := h.tiers.StandingFor(res.State.User.Points)
	c.JSON(http.StatusOK, ScanResponse{
		Accepted:      true,
		PointsAwarded: awarded,
		Visit:         &visit,
		Standing:      &standing,
	})
}
