package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xiumouer/waimai-ops-intelligence/maps"
)

type reverseGeocodeResponse struct {
	FormattedAddress string `json:"formatted_address"`
	Province         string `json:"province"`
	City             string `json:"city"`
	District         string `json:"district"`
	Township         string `json:"township"`
	Street           string `json:"street"`
	StreetNumber     string `json:"street_number"`
	Adcode           string `json:"adcode"`
}

func parseLatitudeLongitude(ctx *gin.Context) (float64, float64, error) {
	latStr := ctx.Query("latitude")
	lngStr := ctx.Query("longitude")
	if latStr == "" || lngStr == "" {
		return 0, 0, fmt.Errorf("latitude and longitude are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude: %w", err)
	}

	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude out of range")
	}
	if lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("longitude out of range")
	}

	return lat, lng, nil
}

// reverseGeocode 将经纬度解析为地址（服务端调用高德接口，不暴露 key）
// GET /v1/location/reverse-geocode
func (server *Server) reverseGeocode(ctx *gin.Context) {
	if server.mapClient == nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, fmt.Errorf("amap client is not configured")))
		return
	}

	lat, lng, err := parseLatitudeLongitude(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	result, err := server.mapClient.ReverseGeocode(ctx, maps.Location{Lat: lat, Lng: lng})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, fmt.Errorf("reverse geocode: %w", err)))
		return
	}

	ctx.JSON(http.StatusOK, reverseGeocodeResponse{
		FormattedAddress: result.FormattedAddress,
		Province:         result.Province,
		City:             result.City,
		District:         result.District,
		Township:         result.Township,
		Street:           result.Street,
		StreetNumber:     result.StreetNumber,
		Adcode:           result.Adcode,
	})
}
