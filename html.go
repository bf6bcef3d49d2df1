package browserauth

// redirectWithAuthJSONHTML is served on the index route. It fetches the
// authorization URL from the local server and navigates the browser there.
// The indirection keeps the (possibly large) authorization URL out of the
// initial page.
const redirectWithAuthJSONHTML = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"></head>
<body>
    <script>
    function writemsg(m) {
        document.body.appendChild(document.createTextNode(m.toString()));
        document.body.appendChild(document.createElement('br'));
    }
    function go() {
        writemsg('Retrieving details of authenticator...');
        fetch('/auth_detail.json').then(function (response) {
            if (!response.ok) {
                throw 'Error during retrieval - ' + response.status + ': ' + response.statusText;
            }
            writemsg('Using details to redirect to authentication page...');
            return response.json()
        }).then(function (auth_url) {
            window.location.href = auth_url;
        }).catch(writemsg);
    }
    go();
    </script>
</body>
</html>
`

// saveAuthHTML is served on the implicit grant's redirect route. The provider
// returns the token in the URL fragment, which is never sent to a server, so
// the page reads it from window.location.hash and posts it back.
const saveAuthHTML = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"></head>
<body>
    <script>
    function writemsg(m) {
        document.body.appendChild(document.createTextNode(m.toString()));
        document.body.appendChild(document.createElement('br'));
    }
    function go() {
        writemsg('Saving authentication details...');
        var qs = window.location.hash.slice(1);
        if (qs.length === 0) {
            writemsg("ERROR: No URL hash returned from authorizer");
            return
        }
        fetch('/save_auth?' + qs, { method: 'POST' }).then(function (response) {
            if (!response.ok) {
                throw 'Error during saving authentication - ' + response.status + ': ' + response.statusText;
            }
            writemsg('Authentication complete, you can now close this page!');
        }).catch(writemsg);
    }
    go();
    </script>
</body>
</html>
`

// DefaultLocalServerSuccessHTML is the response body on authorization
// completed.
const DefaultLocalServerSuccessHTML = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"></head>
<body>In-browser step of authentication complete, you can now close this page!</body>
</html>
`
