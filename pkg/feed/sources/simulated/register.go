package simulated

import (
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
)

func init() {
	sources.Register("simulated", New)
}
