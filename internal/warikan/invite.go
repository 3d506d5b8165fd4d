package warikan

import (
	"fmt"
	"net/url"
	"strings"
)

// InviteURL builds the LIFF deep link that opens the app on the group's join screen.
func InviteURL(liffID, groupID string) string {
	u := url.URL{Scheme: "https", Host: "liff.line.me", Path: "/" + liffID}
	q := url.Values{}
	q.Set("group", groupID)
	q.Set("invite", "1")
	u.RawQuery = q.Encode()
	return u.String()
}

func InviteText(groupName, inviteURL string) string {
	if groupName == "" {
		groupName = "割り勘グループ"
	}
	return fmt.Sprintf("「%s」に招待します！\n参加して割り勘しよう👇\n%s", groupName, inviteURL)
}

// LineShareURL is the fallback used outside the LINE app.
func LineShareURL(text string) string {
	// encodeURIComponent style: spaces as %20, not "+".
	return "https://line.me/R/share?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
