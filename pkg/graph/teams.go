package graph

import (
	"context"
	"fmt"
	"net/http"
)

// maxChannelNameLen is the display-name limit enforced by Teams.
const maxChannelNameLen = 50

// Channel is a Teams channel.
type Channel struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// Tab is a channel tab.
type Tab struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// ChannelDisplayName truncates a project name to the Teams limit. The limit
// counts characters, so multi-byte names are sliced on rune boundaries.
func ChannelDisplayName(name string) string {
	runes := []rune(name)
	if len(runes) > maxChannelNameLen {
		return string(runes[:maxChannelNameLen])
	}
	return name
}

// CreateChannel creates a standard channel on the team backing groupID.
// Requires ChannelSettings.ReadWrite.All.
func (c *Client) CreateChannel(ctx context.Context, token, groupID, name string) (Channel, error) {
	raw, err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/teams/%s/channels", groupID), token, map[string]any{
		"displayName":    ChannelDisplayName(name),
		"membershipType": "standard",
	}, "")
	if err != nil {
		return Channel{}, err
	}
	return decode[Channel](raw, "create channel")
}

// ChannelByName lists the team's channels and matches on display name.
// Used to recover the id of a channel that already exists.
func (c *Client) ChannelByName(ctx context.Context, token, groupID, name string) (Channel, bool, error) {
	raw, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/teams/%s/channels", groupID), token, nil, "")
	if err != nil {
		return Channel{}, false, err
	}
	page, err := decode[struct {
		Value []Channel `json:"value"`
	}](raw, "list channels")
	if err != nil {
		return Channel{}, false, err
	}
	want := ChannelDisplayName(name)
	for _, ch := range page.Value {
		if ch.DisplayName == want {
			return ch, true, nil
		}
	}
	return Channel{}, false, nil
}

// AddTeamMember adds a user to the team with the given role ("owner" or ""
// for a plain member). Standard channels inherit membership from the team.
// Requires TeamMember.ReadWrite.All.
func (c *Client) AddTeamMember(ctx context.Context, token, groupID, userID, role string) error {
	roles := []string{}
	if role != "" {
		roles = append(roles, role)
	}
	_, err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/teams/%s/members", groupID), token, map[string]any{
		"@odata.type":     "#microsoft.graph.aadUserConversationMember",
		"roles":           roles,
		"user@odata.bind": "https://graph.microsoft.com/v1.0/users/" + userID,
	}, "")
	return err
}

// AddPlannerTab pins a Planner tab for planID to the channel. The
// {loginHint} placeholder is literal; Teams substitutes it at render time.
// Requires TeamsTab.ReadWrite.All.
func (c *Client) AddPlannerTab(ctx context.Context, token, groupID, channelID, planID, tenantID string) (Tab, error) {
	contentURL := fmt.Sprintf(
		"https://tasks.office.com/%s/Home/PlannerFrame?page=7&auth_pvr=Orgid&auth_upn={loginHint}&groupId=%s&planId=%s&taskId=&hideNav=true",
		tenantID, groupID, planID,
	)
	raw, err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/teams/%s/channels/%s/tabs", groupID, channelID), token, map[string]any{
		"displayName":         "Planner",
		"teamsApp@odata.bind": "https://graph.microsoft.com/v1.0/appCatalogs/teamsApps/com.microsoft.teamspace.tab.planner",
		"configuration": map[string]any{
			"entityId":   planID,
			"contentUrl": contentURL,
			"websiteUrl": PlanWebURL(tenantID, planID),
			"removeUrl":  nil,
		},
	}, "")
	if err != nil {
		return Tab{}, err
	}
	return decode[Tab](raw, "add planner tab")
}

// PlanWebURL is the browser URL of a Planner plan.
func PlanWebURL(tenantID, planID string) string {
	return fmt.Sprintf("https://tasks.office.com/%s/Home/PlanViews/%s", tenantID, planID)
}
