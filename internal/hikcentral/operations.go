package hikcentral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HikCentral APIのパス。
const (
	PathPersonAdd     = "/artemis/api/resource/v1/person/single/add"
	PathPersonDelete  = "/artemis/api/resource/v1/person/single/delete"
	PathDynamicQRCode = "/artemis/api/resource/v1/person/dynamicqrcode/get"
	PathVisitorAdd    = "/artemis/api/visitor/v1/registerment"
	PathVersion       = "/artemis/api/common/v1/version"
)

// 来訪者登録・QR発行の固定値。
const (
	GenderUnknown        = 0
	VisitPurposeBusiness = 0
	VisitorGroupName     = "Visitors"
	QRValidityMinutes    = 60
	QROpenLockTimes      = 1
	QRTypeDynamic        = 0
)

// PersonAddRequest は person 作成APIのリクエストボディ。
type PersonAddRequest struct {
	PersonCode       string `json:"personCode"`
	PersonFamilyName string `json:"personFamilyName"`
	PersonGivenName  string `json:"personGivenName"`
	Gender           int    `json:"gender"`
	OrgIndexCode     string `json:"orgIndexCode"`
	PhoneNo          string `json:"phoneNo"`
	Email            string `json:"email"`
	BeginTime        string `json:"beginTime"`
	EndTime          string `json:"endTime"`
}

// AddPerson はHikCentralに person を作成し、採番された personId を返す。
func (c *Client) AddPerson(ctx context.Context, req PersonAddRequest) (string, error) {
	data, err := c.Call(ctx, PathPersonAdd, req, http.MethodPost)
	if err != nil {
		return "", err
	}

	personID := scalarString(data)
	if personID == "" {
		return "", &TransportError{Path: PathPersonAdd, Err: fmt.Errorf("personId がレスポンスに含まれていません: %s", string(data))}
	}
	return personID, nil
}

// DeletePerson はHikCentralの person を削除する。
func (c *Client) DeletePerson(ctx context.Context, personID string) error {
	_, err := c.Call(ctx, PathPersonDelete, map[string]string{"personId": personID}, http.MethodPost)
	return err
}

// DynamicQRRequest は動的QRコード発行の対象。
// EmployeeID には作成時に personCode として送ったローカルコードを指定する。
type DynamicQRRequest struct {
	EmployeeID    string `json:"employeeID"`
	Validity      int    `json:"validity"`
	OpenLockTimes int    `json:"openLockTimes"`
	QRType        int    `json:"qrType"`
}

// NewDynamicQRRequest は既定値（有効期間60分、解錠1回）で DynamicQRRequest を生成する。
func NewDynamicQRRequest(employeeID string) DynamicQRRequest {
	return DynamicQRRequest{
		EmployeeID:    employeeID,
		Validity:      QRValidityMinutes,
		OpenLockTimes: QROpenLockTimes,
		QRType:        QRTypeDynamic,
	}
}

// DynamicQRCode は動的QRコードを発行し、QR文字列を返す。
func (c *Client) DynamicQRCode(ctx context.Context, req DynamicQRRequest) (string, error) {
	body := struct {
		Data DynamicQRRequest `json:"data"`
	}{Data: req}

	data, err := c.Call(ctx, PathDynamicQRCode, body, http.MethodPost)
	if err != nil {
		return "", err
	}

	var resp struct {
		QRCode string `json:"qrcode"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.QRCode == "" {
		return "", &TransportError{Path: PathDynamicQRCode, Err: fmt.Errorf("qrcode がレスポンスに含まれていません: %s", string(data))}
	}
	return resp.QRCode, nil
}

// VisitorInfo は来訪者1名分の情報。
type VisitorInfo struct {
	VisitorFamilyName string `json:"visitorFamilyName"`
	VisitorGivenName  string `json:"visitorGivenName"`
	VisitorGroupName  string `json:"visitorGroupName"`
	Gender            int    `json:"gender"`
}

type visitorInfoItem struct {
	VisitorInfo VisitorInfo `json:"VisitorInfo"`
}

// VisitorRegisterRequest は来訪者登録の入力。
type VisitorRegisterRequest struct {
	ReceptionistID string
	VisitStartTime string
	VisitEndTime   string
	VisitorName    string
}

// VisitorRegistration は来訪者登録の結果。
type VisitorRegistration struct {
	AppointRecordID string
	QRCodeImage     string // Base64画像。返されない場合は空
}

// RegisterVisitor は来訪予約を登録する。
func (c *Client) RegisterVisitor(ctx context.Context, req VisitorRegisterRequest) (VisitorRegistration, error) {
	family, given := SplitName(req.VisitorName)
	body := struct {
		ReceptionistID   string            `json:"receptionistId"`
		VisitStartTime   string            `json:"visitStartTime"`
		VisitEndTime     string            `json:"visitEndTime"`
		VisitPurposeType int               `json:"visitPurposeType"`
		VisitorInfoList  []visitorInfoItem `json:"visitorInfoList"`
	}{
		ReceptionistID:   req.ReceptionistID,
		VisitStartTime:   req.VisitStartTime,
		VisitEndTime:     req.VisitEndTime,
		VisitPurposeType: VisitPurposeBusiness,
		VisitorInfoList: []visitorInfoItem{{VisitorInfo: VisitorInfo{
			VisitorFamilyName: family,
			VisitorGivenName:  given,
			VisitorGroupName:  VisitorGroupName,
			Gender:            GenderUnknown,
		}}},
	}

	data, err := c.Call(ctx, PathVisitorAdd, body, http.MethodPost)
	if err != nil {
		return VisitorRegistration{}, err
	}

	var resp struct {
		AppointRecordID json.RawMessage `json:"appointRecordId"`
		QRCodeImage     string          `json:"qrCodeImage"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return VisitorRegistration{}, &TransportError{Path: PathVisitorAdd, Err: fmt.Errorf("来訪者登録レスポンスの解析に失敗しました: %w", err)}
	}

	reg := VisitorRegistration{
		AppointRecordID: scalarString(resp.AppointRecordID),
		QRCodeImage:     resp.QRCodeImage,
	}
	if reg.AppointRecordID == "" {
		return VisitorRegistration{}, &TransportError{Path: PathVisitorAdd, Err: fmt.Errorf("appointRecordId がレスポンスに含まれていません: %s", string(data))}
	}
	return reg, nil
}

// Version はボディなしPOSTでHikCentralのバージョン情報を取得する。接続確認に使用する。
func (c *Client) Version(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, PathVersion, nil, http.MethodPost)
}

// SplitName は氏名を最後の空白区切りトークン（姓）とそれ以外（名）に分割する。
// トークンが1つの場合は姓・名の両方に同じ値を設定する。
func SplitName(name string) (family, given string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], fields[0]
	}
	return fields[len(fields)-1], strings.Join(fields[:len(fields)-1], " ")
}

// scalarString はJSONの文字列または数値を文字列として返す。
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
