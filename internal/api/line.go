package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// LineProfile is the payload LINE returns for a verified ID token.
type LineProfile struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Aud     string `json:"aud"`
	Exp     int64  `json:"exp"`
}

type lineError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// verifyLineIDToken asks LINE to validate an ID token issued for our channel.
func (a *API) verifyLineIDToken(ctx context.Context, idToken string) (*LineProfile, error) {
	form := url.Values{}
	form.Set("id_token", idToken)
	form.Set("client_id", a.config.LineChannelID)

	req, err := http.NewRequestWithContext(ctx, "POST", a.lineAPIBase+"/oauth2/v2.1/verify", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "warikan/1.0 (+https://github.com/susu3304/warikan)")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var le lineError
		_ = json.NewDecoder(resp.Body).Decode(&le)
		if le.ErrorDescription != "" {
			return nil, fmt.Errorf("LINE verify returned status %d: %s", resp.StatusCode, le.ErrorDescription)
		}
		return nil, fmt.Errorf("LINE verify returned status %d", resp.StatusCode)
	}

	var profile LineProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	if profile.Sub == "" {
		return nil, fmt.Errorf("LINE verify: no sub in response")
	}
	return &profile, nil
}
