package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goodtune/kreport/internal/domain"
)

// DomainViews exposes the normalizer and ignore list.
type DomainViews struct {
	normalizer Normalizer
	ignore     *domain.IgnoreList
}

// NewDomainViews creates a new domain views instance.
func NewDomainViews(normalizer Normalizer, ignore *domain.IgnoreList) *DomainViews {
	return &DomainViews{normalizer: normalizer, ignore: ignore}
}

// Normalize returns the registrable domain for ?raw= and whether it is ignored.
func (v *DomainViews) Normalize(ctx *gin.Context) {
	raw := ctx.Query("raw")
	d := v.normalizer.Normalize(raw)

	ctx.JSON(http.StatusOK, gin.H{
		"raw":     raw,
		"domain":  d,
		"ignored": v.ignore.IsIgnored(d),
	})
}

// IgnoreList returns the configured ignore suffixes.
func (v *DomainViews) IgnoreList(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"suffixes": v.ignore.Suffixes()})
}
