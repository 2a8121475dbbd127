// Package maps 封装高德地图 WebService API：驾车路线、IP 定位、逆地理编码。
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://restapi.amap.com"

	drivingURL        = "/v3/direction/driving" // 驾车路线
	ipLocationURL     = "/v3/ip"                // IP 定位
	reverseGeocodeURL = "/v3/geocode/regeo"     // 坐标转地址
)

// ErrMissingKey 未配置高德 key
var ErrMissingKey = errors.New("amap key is required")

// AMapClient 高德地图客户端
type AMapClient struct {
	key        string
	baseURL    string
	httpClient *http.Client
}

// Client 高德地图客户端接口
type Client interface {
	// GetDrivingRoute 驾车路线规划
	GetDrivingRoute(ctx context.Context, from, to Location) (*RouteResult, error)
	// LocateIP IP 粗定位（空 ip 表示按请求出口 IP 定位）
	LocateIP(ctx context.Context, ip string) (*IPLocation, error)
	// ReverseGeocode 坐标转地址
	ReverseGeocode(ctx context.Context, location Location) (*ReverseGeocodeResult, error)
}

// Location 位置坐标
type Location struct {
	Lat float64 `json:"lat"` // 纬度
	Lng float64 `json:"lng"` // 经度
}

// String 返回 "经度,纬度" 格式（高德参数坐标序与腾讯相反）
func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Lng, l.Lat)
}

// RouteResult 路线规划结果
type RouteResult struct {
	Distance int `json:"distance"` // 距离（米）
	Duration int `json:"duration"` // 时间（秒）
}

// IPLocation IP 定位结果
type IPLocation struct {
	Location       Location `json:"location"`        // 定位矩形中心点
	AccuracyMeters float64  `json:"accuracy_meters"` // 精度半径（矩形对角线一半）
	Province       string   `json:"province"`
	City           string   `json:"city"`
}

// ReverseGeocodeResult 逆地理编码结果
type ReverseGeocodeResult struct {
	FormattedAddress string `json:"formatted_address"`
	Province         string `json:"province"`
	City             string `json:"city"`
	District         string `json:"district"`
	Township         string `json:"township"`
	Street           string `json:"street"`
	StreetNumber     string `json:"street_number"`
	Adcode           string `json:"adcode"`
}

// NewAMapClient 创建高德地图客户端。key 缺失视为功能级配置错误。
func NewAMapClient(key string) (*AMapClient, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	return &AMapClient{
		key:     key,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// ==================== API 响应结构 ====================

// 高德 v3 响应没有统一的 result 包装，status/info 与数据字段平铺，
// status 为字符串 "1" 表示成功。

type drivingAPIResponse struct {
	Status string `json:"status"`
	Info   string `json:"info"`
	Route  struct {
		Paths []struct {
			Distance string `json:"distance"`
			Duration string `json:"duration"`
		} `json:"paths"`
	} `json:"route"`
}

type ipAPIResponse struct {
	Status    string     `json:"status"`
	Info      string     `json:"info"`
	Province  flexString `json:"province"`
	City      flexString `json:"city"`
	Rectangle flexString `json:"rectangle"` // "lng1,lat1;lng2,lat2"
}

type regeoAPIResponse struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	Regeocode struct {
		FormattedAddress flexString `json:"formatted_address"`
		AddressComponent struct {
			Province flexString `json:"province"`
			City     flexString `json:"city"` // 直辖市返回空数组而非字符串
			District flexString `json:"district"`
			Township flexString `json:"township"`
			Adcode   flexString `json:"adcode"`
			Street   flexString `json:"street"`
			Number   flexString `json:"number"`
		} `json:"addressComponent"`
	} `json:"regeocode"`
}

// flexString 兼容高德在字段为空时返回 [] 的习惯
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*s = flexString(asString)
		return nil
	}
	// 空数组等非字符串形态一律当空值
	*s = ""
	return nil
}

// ==================== 路线规划 ====================

// GetDrivingRoute 驾车路线规划
func (c *AMapClient) GetDrivingRoute(ctx context.Context, from, to Location) (*RouteResult, error) {
	params := url.Values{}
	params.Set("origin", from.String())
	params.Set("destination", to.String())
	params.Set("extensions", "base")
	params.Set("key", c.key)

	body, err := c.doRequest(ctx, c.baseURL+drivingURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp drivingAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Status != "1" {
		return nil, fmt.Errorf("API error: %s", resp.Info)
	}
	if len(resp.Route.Paths) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	path := resp.Route.Paths[0]
	distance, err := strconv.Atoi(path.Distance)
	if err != nil {
		return nil, fmt.Errorf("parse distance %q: %w", path.Distance, err)
	}
	duration, err := strconv.Atoi(path.Duration)
	if err != nil {
		return nil, fmt.Errorf("parse duration %q: %w", path.Duration, err)
	}

	return &RouteResult{Distance: distance, Duration: duration}, nil
}

// ==================== IP 定位 ====================

// LocateIP IP 粗定位，返回定位矩形的中心点与精度半径
func (c *AMapClient) LocateIP(ctx context.Context, ip string) (*IPLocation, error) {
	params := url.Values{}
	if ip != "" {
		params.Set("ip", ip)
	}
	params.Set("key", c.key)

	body, err := c.doRequest(ctx, c.baseURL+ipLocationURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp ipAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Status != "1" {
		return nil, fmt.Errorf("API error: %s", resp.Info)
	}
	if resp.Rectangle == "" {
		return nil, fmt.Errorf("no location for ip")
	}

	center, accuracy, err := parseRectangle(string(resp.Rectangle))
	if err != nil {
		return nil, err
	}

	return &IPLocation{
		Location:       center,
		AccuracyMeters: accuracy,
		Province:       string(resp.Province),
		City:           string(resp.City),
	}, nil
}

// parseRectangle 解析 "lng1,lat1;lng2,lat2" 矩形，返回中心点与精度半径
func parseRectangle(rect string) (Location, float64, error) {
	corners := strings.Split(rect, ";")
	if len(corners) != 2 {
		return Location{}, 0, fmt.Errorf("unexpected rectangle format: %s", rect)
	}

	parse := func(s string) (Location, error) {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return Location{}, fmt.Errorf("unexpected corner format: %s", s)
		}
		lng, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return Location{}, err
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return Location{}, err
		}
		return Location{Lat: lat, Lng: lng}, nil
	}

	c1, err := parse(corners[0])
	if err != nil {
		return Location{}, 0, err
	}
	c2, err := parse(corners[1])
	if err != nil {
		return Location{}, 0, err
	}

	center := Location{
		Lat: (c1.Lat + c2.Lat) / 2,
		Lng: (c1.Lng + c2.Lng) / 2,
	}

	// 纬度 1 度约 111km，经度按中心纬度折算
	latMeters := (c2.Lat - c1.Lat) * 111000
	lngMeters := (c2.Lng - c1.Lng) * 111000 * math.Cos(center.Lat*math.Pi/180)
	accuracy := math.Sqrt(latMeters*latMeters+lngMeters*lngMeters) / 2

	return center, math.Abs(accuracy), nil
}

// ==================== 逆地理编码 ====================

// ReverseGeocode 坐标转地址
func (c *AMapClient) ReverseGeocode(ctx context.Context, location Location) (*ReverseGeocodeResult, error) {
	params := url.Values{}
	params.Set("location", location.String())
	params.Set("extensions", "base")
	params.Set("key", c.key)

	body, err := c.doRequest(ctx, c.baseURL+reverseGeocodeURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp regeoAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Status != "1" {
		return nil, fmt.Errorf("API error: %s", resp.Info)
	}

	comp := resp.Regeocode.AddressComponent
	return &ReverseGeocodeResult{
		FormattedAddress: string(resp.Regeocode.FormattedAddress),
		Province:         string(comp.Province),
		City:             string(comp.City),
		District:         string(comp.District),
		Township:         string(comp.Township),
		Street:           string(comp.Street),
		StreetNumber:     string(comp.Number),
		Adcode:           string(comp.Adcode),
	}, nil
}

// ==================== HTTP 请求 ====================

func (c *AMapClient) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return body, nil
}

// 确保实现接口
var _ Client = (*AMapClient)(nil)
