package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const dashboardHTML = `
<html>
<body>
	<header class="aui-header">
		<span class="aui-avatar"><img src="/avatar.png"></span>
	</header>
	<div id="dashboard">
		<h1>System Dashboard</h1>
	</div>
	<a id="header-details-user-fullname" href="/secure/ViewProfile.jspa">Jordan Lee</a>
</body>
</html>`

const loginHTML = `
<html>
<body>
	<form id="login-form" action="/login.jsp" method="post">
		<input name="os_username" type="text">
		<input name="os_password" type="password">
		<input id="loginSubmit" type="submit" value="Log In">
	</form>
</body>
</html>`

const plainContentHTML = `
<html>
<body>
	<div class="project-list">
		<ul><li>Project A</li><li>Project B</li></ul>
	</div>
</body>
</html>`

func TestPageIndicatesAuthenticated_Dashboard(t *testing.T) {
	ok := PageIndicatesAuthenticated(dashboardHTML, "https://jira.example.com/secure/Dashboard.jspa", "/login.jsp")
	assert.True(t, ok)
}

func TestPageIndicatesAuthenticated_LoginForm(t *testing.T) {
	ok := PageIndicatesAuthenticated(loginHTML, "https://jira.example.com/secure/Dashboard.jspa", "/login.jsp")
	assert.False(t, ok)
}

// Landing on the login path is a negative answer regardless of markup
func TestPageIndicatesAuthenticated_LoginURL(t *testing.T) {
	ok := PageIndicatesAuthenticated(dashboardHTML, "https://jira.example.com/login.jsp?os_destination=%2Fsecure%2FDashboard.jspa", "/login.jsp")
	assert.False(t, ok)
}

func TestPageIndicatesAuthenticated_LoginRedirectWithDestination(t *testing.T) {
	ok := PageIndicatesAuthenticated(plainContentHTML, "https://id.example.com/login?os_destination=%2Fsecure%2FDashboard.jspa", "")
	assert.False(t, ok)
}

// Pages without positive markers still count as authenticated when no login
// surface is present
func TestPageIndicatesAuthenticated_PlainContent(t *testing.T) {
	ok := PageIndicatesAuthenticated(plainContentHTML, "https://jira.example.com/secure/BrowseProjects.jspa", "/login.jsp")
	assert.True(t, ok)
}

func TestPageIndicatesAuthenticated_EmptyBody(t *testing.T) {
	ok := PageIndicatesAuthenticated("<html><body></body></html>", "https://jira.example.com/secure/Dashboard.jspa", "/login.jsp")
	assert.False(t, ok)
}
